package s3storage

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ttony15/cpmai/internal/config"
	"github.com/ttony15/cpmai/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "test",
		S3SecretKey: "test",
		S3Region:    "us-east-1",
		Bucket:      "cpmai-documents",
	}
}

func TestObjectKeyLayout(t *testing.T) {
	key := ObjectKey("u1", "p1", model.CategoryDrawing, "plan.pdf")
	require.Equal(t, "u1/p1/drawing/plan.pdf", key)
}

// Presigning is pure client-side V4 signing when the region is configured,
// so it works without a reachable endpoint. Keys embedding reserved URL
// characters must survive the round trip through the presigned path.
func TestPresignURLEscapesKey(t *testing.T) {
	store, err := New(testConfig())
	require.NoError(t, err)

	key := "u1/p1/drawing/Floor+Plan #2.pdf"
	signed, err := store.PresignURL(context.Background(), key, time.Minute)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "/cpmai-documents/"+key, parsed.Path)
	require.NotEmpty(t, parsed.Query().Get("X-Amz-Signature"))
}
