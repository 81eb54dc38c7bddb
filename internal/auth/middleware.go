package auth

import (
	"crypto/subtle"
	"net/http"
	"time"

	logger "github.com/sirupsen/logrus"
)

const realm = `Basic realm="Admin"`

// AuthenticateMiddleware guards the admin pages. A valid session cookie is
// enough; otherwise HTTP Basic credentials are checked and a fresh session
// cookie is issued.
type AuthenticateMiddleware struct {
	Secret       []byte
	User         string
	PasswordHash string
	TTL          time.Duration
}

func (m *AuthenticateMiddleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		if user, err := VerifyUser(r, m.Secret); err == nil && m.sameUser(user) {
			next.ServeHTTP(w, r)
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !m.sameUser(user) || !CheckPasswordHash(password, m.PasswordHash) {
			if ok {
				logger.Warnf("Rejected admin login for %q from %s", user, r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", realm)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Auth required."))
			return
		}

		if err := SetAuthCookie(user, w, m.Secret, m.TTL); err != nil {
			logger.Errorf("Could not issue admin session: %s", err)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthenticateMiddleware) sameUser(user string) bool {
	return subtle.ConstantTimeCompare([]byte(user), []byte(m.User)) == 1
}
