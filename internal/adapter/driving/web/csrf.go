package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
)

// Decrypt and dismiss posts carry a double-submit token. The console page
// plants it in a script-readable cookie; console.js echoes it in
// csrfHeader and the no-script form fallback sends it as csrfFormField.
const (
	csrfCookieName = "opconsole_csrf"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRF-Token"

	// csrfTokenBytes is the entropy of a token; the wire form is hex.
	csrfTokenBytes = 32
)

// csrfToken returns the token the browser already holds, or plants a new
// one. A cookie that is not a token this console could have issued is
// replaced.
func csrfToken(w http.ResponseWriter, r *http.Request) string {
	if token, ok := heldToken(r); ok {
		return token
	}

	token := newCSRFToken()
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: false, // console.js copies it into csrfHeader
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	return token
}

// validateCSRF reports whether the request echoes the cookie's token.
func validateCSRF(r *http.Request) bool {
	held, ok := heldToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submittedToken(r)), []byte(held)) == 1
}

func heldToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || len(cookie.Value) != hex.EncodedLen(csrfTokenBytes) {
		return "", false
	}
	if _, err := hex.DecodeString(cookie.Value); err != nil {
		return "", false
	}
	return cookie.Value, true
}

// submittedToken prefers the header over the form field; a request that
// sets the header is judged by it alone.
func submittedToken(r *http.Request) string {
	if token := r.Header.Get(csrfHeader); token != "" {
		return token
	}
	return r.FormValue(csrfFormField)
}

func newCSRFToken() string {
	b := make([]byte, csrfTokenBytes)
	// crypto/rand.Read never returns an error since Go 1.24.
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
