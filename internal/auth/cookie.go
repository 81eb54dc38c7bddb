package auth

import (
	"net/http"
	"time"
)

const adminCookie = "_admin"

func VerifyUser(r *http.Request, secret []byte) (string, error) {
	cookie, err := r.Cookie(adminCookie)
	if err == nil {
		user, err := GetUser(cookie.Value, secret)
		if err != nil {
			return user, err
		}
		return user, nil
	}
	return "", err
}

func SetAuthCookie(username string, w http.ResponseWriter, secret []byte, ttl time.Duration) error {

	token, err := BuildJWTString(username, secret, ttl)
	if err != nil {
		return err
	}
	cookie := &http.Cookie{
		Name:     adminCookie,
		Value:    token,
		Path:     "/admin",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
	return nil
}
