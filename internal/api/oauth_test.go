package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerrad567/lumina-bridge/internal/auth"
)

func authorizeURL(params url.Values) string {
	return "/oauth/authorize?" + params.Encode()
}

func validAuthorizeParams() url.Values {
	return url.Values{
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"state":         {"xyz"},
	}
}

func signAssertion(t *testing.T, secret, subject string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing assertion: %v", err)
	}
	return signed
}

func tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// redirectParams checks for a 302 to the registered URI and returns its query.
func redirectParams(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body = %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parsing Location: %v", err)
	}
	if got := loc.Scheme + "://" + loc.Host + loc.Path; got != testRedirectURI {
		t.Errorf("redirect target = %q, want %q", got, testRedirectURI)
	}
	return loc.Query()
}

// ============================================================================
// Full exchange
// ============================================================================

func TestOAuth_CodeExchangeAuthenticatesFulfilment(t *testing.T) {
	env := newTestEnv(t, nil)

	q := redirectParams(t, env.do(httptest.NewRequest(http.MethodGet, authorizeURL(validAuthorizeParams()), nil)))
	if q.Get("state") != "xyz" {
		t.Errorf("state = %q, want xyz", q.Get("state"))
	}
	code := q.Get("code")
	if code == "" {
		t.Fatal("redirect carries no code")
	}

	rec := env.do(tokenRequest(url.Values{"grant_type": {"authorization_code"}, "code": {code}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("token response is cacheable")
	}
	var tok auth.Token
	decodeBody(t, rec, &tok)
	if tok.TokenType != auth.TokenTypeBearer || tok.AccessToken == "" {
		t.Fatalf("token = %+v", tok)
	}
	if tok.ExpiresIn != int(auth.DefaultTokenTTL.Seconds()) {
		t.Errorf("expires_in = %d, want %d", tok.ExpiresIn, int(auth.DefaultTokenTTL.Seconds()))
	}

	rec = env.do(smartHomeRequest(tok.AccessToken, syncBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("fulfilment status = %d", rec.Code)
	}
	if env.intents.owner != testOwner {
		t.Errorf("owner = %q, want %q", env.intents.owner, testOwner)
	}

	// Codes are single use.
	rec = env.do(tokenRequest(url.Values{"grant_type": {"authorization_code"}, "code": {code}}))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_grant") {
		t.Errorf("second redeem: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestAuthorize_AssertionSelectsOwner(t *testing.T) {
	env := newTestEnv(t, nil)

	params := validAuthorizeParams()
	params.Set("assertion", signAssertion(t, testSecret, "owner-2"))
	code := redirectParams(t, env.do(httptest.NewRequest(http.MethodGet, authorizeURL(params), nil))).Get("code")

	tok, err := env.issuer.Redeem(t.Context(), code)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	rec := env.do(smartHomeRequest(tok.AccessToken, syncBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.intents.owner != "owner-2" {
		t.Errorf("owner = %q, want owner-2", env.intents.owner)
	}
}

// ============================================================================
// Authorize failures
// ============================================================================

func TestAuthorize_RejectsUnregisteredClient(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
	}{
		{"unknown client", func(v url.Values) { v.Set("client_id", "someone-else") }},
		{"unregistered redirect", func(v url.Values) { v.Set("redirect_uri", "https://evil.example/cb") }},
		{"missing redirect", func(v url.Values) { v.Del("redirect_uri") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			params := validAuthorizeParams()
			tt.mutate(params)
			rec := env.do(httptest.NewRequest(http.MethodGet, authorizeURL(params), nil))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if rec.Header().Get("Location") != "" {
				t.Error("unregistered client was redirected")
			}
		})
	}
}

func TestAuthorize_RedirectsErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*testing.T, url.Values)
		noOwner   bool
		wantError string
	}{
		{
			name:      "unsupported response type",
			mutate:    func(_ *testing.T, v url.Values) { v.Set("response_type", "token") },
			wantError: "unsupported_response_type",
		},
		{
			name: "bad assertion signature",
			mutate: func(t *testing.T, v url.Values) {
				v.Set("assertion", signAssertion(t, "wrong-secret", "owner-2"))
			},
			wantError: "access_denied",
		},
		{
			name:      "no owner available",
			mutate:    func(*testing.T, url.Values) {},
			noOwner:   true,
			wantError: "access_denied",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(d *Deps) {
				if tt.noOwner {
					d.Config.Security.TestOwnerID = ""
				}
			})
			params := validAuthorizeParams()
			tt.mutate(t, params)
			q := redirectParams(t, env.do(httptest.NewRequest(http.MethodGet, authorizeURL(params), nil)))
			if q.Get("error") != tt.wantError {
				t.Errorf("error = %q, want %q", q.Get("error"), tt.wantError)
			}
			if q.Get("code") != "" {
				t.Error("error redirect carries a code")
			}
			if q.Get("state") != "xyz" {
				t.Errorf("state = %q, want xyz", q.Get("state"))
			}
		})
	}
}

// ============================================================================
// Token failures
// ============================================================================

func TestToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantError  string
	}{
		{"missing grant type", url.Values{"code": {"x"}}, http.StatusBadRequest, "invalid_request"},
		{"refresh grant", url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"r"}}, http.StatusBadRequest, "unsupported_grant_type"},
		{"password grant", url.Values{"grant_type": {"password"}}, http.StatusBadRequest, "unsupported_grant_type"},
		{"unknown code", url.Values{"grant_type": {"authorization_code"}, "code": {"nope"}}, http.StatusBadRequest, "invalid_grant"},
		{"empty code", url.Values{"grant_type": {"authorization_code"}}, http.StatusBadRequest, "invalid_grant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(tokenRequest(tt.form))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			decodeBody(t, rec, &body)
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}
