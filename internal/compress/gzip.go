// Package compress accepts gzip-encoded request bodies.
package compress

import (
	"compress/gzip"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// RequestUngzipper transparently inflates gzip request bodies. Limit caps
// the inflated size; zero means no cap.
type RequestUngzipper struct {
	Limit int64
}

func (u RequestUngzipper) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		if !strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		reader, err := gzip.NewReader(r.Body)
		if err != nil {
			logger.Debugf("Bad gzip body: %s", err)
			http.Error(w, "Could not decompress body", http.StatusBadRequest)
			return
		}
		defer reader.Close()

		r.Header.Del("Content-Encoding")
		r.Header.Del("Content-Length")
		r.ContentLength = -1
		r.Body = reader
		if u.Limit > 0 {
			r.Body = http.MaxBytesReader(w, reader, u.Limit)
		}
		next.ServeHTTP(w, r)
	})
}
