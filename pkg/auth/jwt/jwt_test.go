package jwt

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/unillm/unillm/pkg/auth"
)

const secret = "test-secret"

func signToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func authenticate(a *Authenticator, header string) auth.Result {
	r := httptest.NewRequest("POST", "/api/chat", nil)
	if header != "" {
		r.Header.Set("Authorization", header)
	}
	return a.Authenticate(context.Background(), r)
}

func TestValidToken(t *testing.T) {
	a := New(Config{Secret: secret})
	tok := signToken(t, secret, jwtlib.MapClaims{
		"sub":  "alice",
		"tier": "pro",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	res := authenticate(a, "Bearer "+tok)
	if res.Decision != auth.Yes {
		t.Fatalf("decision = %v, err = %v", res.Decision, res.Err)
	}
	if res.Identity.Subject != "alice" || res.Identity.ServiceTier != "pro" {
		t.Errorf("identity = %+v", res.Identity)
	}
}

func TestTierDefaults(t *testing.T) {
	a := New(Config{Secret: secret})
	tok := signToken(t, secret, jwtlib.MapClaims{"sub": "bob"})
	res := authenticate(a, "Bearer "+tok)
	if res.Decision != auth.Yes || res.Identity.ServiceTier != "default" {
		t.Errorf("result = %+v", res)
	}
}

func TestWrongSecret(t *testing.T) {
	a := New(Config{Secret: secret})
	tok := signToken(t, "other-secret", jwtlib.MapClaims{"sub": "alice"})
	if res := authenticate(a, "Bearer "+tok); res.Decision != auth.No {
		t.Errorf("decision = %v, want No", res.Decision)
	}
}

func TestExpiredToken(t *testing.T) {
	a := New(Config{Secret: secret})
	tok := signToken(t, secret, jwtlib.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if res := authenticate(a, "Bearer "+tok); res.Decision != auth.No {
		t.Errorf("decision = %v, want No", res.Decision)
	}
}

func TestIssuerValidation(t *testing.T) {
	a := New(Config{Secret: secret, Issuer: "unillm"})

	good := signToken(t, secret, jwtlib.MapClaims{"sub": "alice", "iss": "unillm"})
	if res := authenticate(a, "Bearer "+good); res.Decision != auth.Yes {
		t.Errorf("matching issuer rejected: %v", res.Err)
	}

	bad := signToken(t, secret, jwtlib.MapClaims{"sub": "alice", "iss": "someone-else"})
	if res := authenticate(a, "Bearer "+bad); res.Decision != auth.No {
		t.Errorf("wrong issuer accepted")
	}
}

func TestMissingSubject(t *testing.T) {
	a := New(Config{Secret: secret})
	tok := signToken(t, secret, jwtlib.MapClaims{"tier": "pro"})
	if res := authenticate(a, "Bearer "+tok); res.Decision != auth.No {
		t.Errorf("decision = %v, want No", res.Decision)
	}
}

func TestUnsignedAlgorithmRejected(t *testing.T) {
	a := New(Config{Secret: secret})
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "alice"})
	s, err := token.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if res := authenticate(a, "Bearer "+s); res.Decision != auth.No {
		t.Errorf("alg=none token accepted")
	}
}

func TestAbstainWithoutBearer(t *testing.T) {
	a := New(Config{Secret: secret})
	if res := authenticate(a, ""); res.Decision != auth.Abstain {
		t.Errorf("no header: decision = %v", res.Decision)
	}
}
