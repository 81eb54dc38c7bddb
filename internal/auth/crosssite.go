package auth

import (
	"net/http"

	logger "github.com/sirupsen/logrus"
)

// RejectCrossSite refuses requests a browser marks as coming from another
// site. Browsers resend Basic credentials on such requests, so a link
// elsewhere could otherwise approve or reject orders. Clients that send no
// Sec-Fetch-Site header are let through.
func RejectCrossSite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Sec-Fetch-Site") == "cross-site" {
			logger.Warnf("Refused cross-site %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
			http.Error(w, "Cross-site request refused", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
