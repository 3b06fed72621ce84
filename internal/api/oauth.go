package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/nerrad567/lumina-bridge/internal/auth"
)

// Grant types accepted at the token endpoint.
const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)

// handleAuthorize issues a code and redirects to redirect_uri with code and
// state. The owner comes from a signed assertion when one is given, else
// from the configured test owner.
//
// An unregistered client or redirect URI is answered directly with 400 and
// never redirected.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")

	if err := s.client.Check(q.Get("client_id"), redirectURI); err != nil {
		s.logger.Warn("authorize rejected", "error", err, "client_id", q.Get("client_id"))
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidClient)
		return
	}
	target, err := url.Parse(redirectURI)
	if err != nil || !target.IsAbs() {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest)
		return
	}

	if rt := q.Get("response_type"); rt != "" && rt != "code" {
		redirectWith(w, r, target, url.Values{"error": {oauthUnsupportedResponse}, "state": {q.Get("state")}})
		return
	}

	owner := s.cfg.Security.TestOwnerID
	if assertion := q.Get("assertion"); assertion != "" {
		owner, err = auth.ParseAssertion(s.cfg.Security.AssertionSecret, assertion)
		if err != nil {
			s.logger.Warn("identity assertion rejected", "error", err)
			redirectWith(w, r, target, url.Values{"error": {oauthAccessDenied}, "state": {q.Get("state")}})
			return
		}
	}
	if owner == "" {
		redirectWith(w, r, target, url.Values{"error": {oauthAccessDenied}, "state": {q.Get("state")}})
		return
	}

	code, err := s.issuer.IssueCode(r.Context(), owner)
	if err != nil {
		s.logger.Error("issuing authorization code", "owner", owner, "error", err)
		redirectWith(w, r, target, url.Values{"error": {oauthServerError}, "state": {q.Get("state")}})
		return
	}

	redirectWith(w, r, target, url.Values{"code": {code}, "state": {q.Get("state")}})
}

// redirectWith merges params into target's query and redirects with 302.
func redirectWith(w http.ResponseWriter, r *http.Request, target *url.URL, params url.Values) {
	u := *target
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}

// handleToken redeems an authorization code. Refresh grants are recognised
// but not supported.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest)
		return
	}

	switch r.PostForm.Get("grant_type") {
	case grantAuthorizationCode:
	case grantRefreshToken:
		writeOAuthError(w, http.StatusBadRequest, oauthUnsupportedGrantType)
		return
	case "":
		writeOAuthError(w, http.StatusBadRequest, oauthInvalidRequest)
		return
	default:
		writeOAuthError(w, http.StatusBadRequest, oauthUnsupportedGrantType)
		return
	}

	tok, err := s.issuer.Redeem(r.Context(), r.PostForm.Get("code"))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidGrant) {
			writeOAuthError(w, http.StatusBadRequest, oauthInvalidGrant)
			return
		}
		s.logger.Error("redeeming authorization code", "error", err)
		writeOAuthError(w, http.StatusInternalServerError, oauthServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tok)
}
