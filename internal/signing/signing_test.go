package signing

import "testing"

func TestSigner(t *testing.T) {
	secret := []byte("topsecret")
	s := NewSigner(secret)
	sig := s.Sign("u1/p1/drawing/plan.pdf", 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("u1/p1/drawing/plan.pdf", "1700000000", sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("u1/p1/drawing/other.pdf", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong storage key")
	}
	if s.Validate("u1/p1/drawing/plan.pdf", "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if s.Validate("u1/p1/drawing/plan.pdf", "notanumber", sig) {
		t.Fatalf("expected validation to fail for malformed expiry")
	}
}
