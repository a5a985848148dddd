package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/ncuskey/solid-couscous/internal/config"
)

// authConfig holds the operator credentials. Players never authenticate.
type authConfig struct {
	user    string
	pass    string
	enabled bool
}

var auth *authConfig

// InitAuth takes the admin credentials from resolved secrets.
// If either is empty, operator routes are left open (bench mode).
func InitAuth(s *config.Secrets) {
	if s == nil {
		auth = &authConfig{}
		return
	}
	auth = &authConfig{
		user:    s.AdminUser,
		pass:    s.AdminPassword,
		enabled: s.AdminUser != "" && s.AdminPassword != "",
	}
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authorized checks basic auth credentials against the configured admin.
func authorized(r *http.Request) bool {
	if !IsAuthEnabled() {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	// Evaluate both so a wrong user costs the same as a wrong password.
	userOK := secureCompare(user, auth.user)
	passOK := secureCompare(pass, auth.pass)
	return userOK && passOK
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RequireAdmin wraps a handler on the operator surface.
func RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Lockbox"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}
