package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttony15/cpmai/internal/signing"
)

// Storage keys embed user-supplied filenames. A link issued for a key with
// reserved URL characters must decode server-side to the exact key that was
// signed, otherwise the download handler rejects a legitimate link.
func TestSignedDownloadURLSurvivesAwkwardFilenames(t *testing.T) {
	signer := signing.NewSigner([]byte("test-secret"))
	keys := []string{
		"u1/p1/drawing/Floor+Plan.pdf",
		"u1/p1/specification/spec rev 2.pdf",
		"u1/p1/quote/a&b #3 100%.pdf",
	}
	expires := time.Now().Add(time.Minute).Unix()
	for _, key := range keys {
		link := signedDownloadURL(signer, key, expires)

		// Decode the link the same way handleDownload does.
		req := httptest.NewRequest("GET", link, nil)
		q := req.URL.Query()
		require.Equal(t, key, q.Get("key"))
		require.True(t, signer.Validate(q.Get("key"), q.Get("expires"), q.Get("signature")),
			"link for %q must validate after a query round trip", key)
	}
}

func TestSignedDownloadURLRejectsTamperedKey(t *testing.T) {
	signer := signing.NewSigner([]byte("test-secret"))
	expires := time.Now().Add(time.Minute).Unix()
	link := signedDownloadURL(signer, "u1/p1/drawing/plan.pdf", expires)

	req := httptest.NewRequest("GET", link, nil)
	q := req.URL.Query()
	require.False(t, signer.Validate("u1/p1/drawing/other.pdf", q.Get("expires"), q.Get("signature")))
}
