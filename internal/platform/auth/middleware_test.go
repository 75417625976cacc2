package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-signing-key")

func signToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func testClaims(sub string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Scope:             "read:patient openid",
		PreferredUsername: "gsiegel",
		Email:             "gsiegel@example.com",
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	e := echo.New()
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testClaims("auth0|abc123")))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := mw(func(c echo.Context) error {
		if c.Get("auth_subject").(string) != "auth0|abc123" {
			t.Errorf("expected subject on context, got %v", c.Get("auth_subject"))
		}
		claims := ClaimsFromContext(c)
		if claims == nil || claims.PreferredUsername != "gsiegel" {
			t.Error("expected claims on context")
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	h := mw(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	e := echo.New()
	mw := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})

	claims := testClaims("auth0|abc123")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))
	c := e.NewContext(req, httptest.NewRecorder())

	h := mw(func(c echo.Context) error { return nil })
	err := h(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for expired token, got %v", err)
	}
}

func TestClaims_Scopes(t *testing.T) {
	claims := &Claims{
		Scope:       "openid read:patient read:patient",
		Permissions: []string{"read:patient", "admin:all"},
	}
	scopes := claims.Scopes()
	want := []string{"openid", "read:patient", "admin:all"}
	if len(scopes) != len(want) {
		t.Fatalf("expected %v, got %v", want, scopes)
	}
	for i, s := range want {
		if scopes[i] != s {
			t.Errorf("expected scope %q at %d, got %q", s, i, scopes[i])
		}
	}
}

func TestRequireScope(t *testing.T) {
	e := echo.New()

	handler := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	// Granted
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("auth_claims", &Claims{Scope: "read:patient"})
	if err := RequireScope("read:patient")(handler)(c); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Denied
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("auth_claims", &Claims{Scope: "openid"})
	err := RequireScope("read:patient")(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}

	// Unauthenticated
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	err = RequireScope("read:patient")(handler)(c)
	httpErr, ok = err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestJWKSCache_FetchAndParse(t *testing.T) {
	// Serve a JWKS with one RSA key (modulus/exponent are arbitrary but valid base64url).
	jwks := `{"keys":[{"kty":"RSA","kid":"key-1","use":"sig","alg":"RS256","n":"sXchJ2tE","e":"AQAB"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(jwks))
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute)
	key, err := cache.GetKey("key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.E != 65537 {
		t.Errorf("expected exponent 65537, got %d", key.E)
	}

	if _, err := cache.GetKey("missing"); err == nil {
		t.Error("expected error for unknown kid")
	}
}
