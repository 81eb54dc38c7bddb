package compress

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipped(t *testing.T, s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func echo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		w.Write(body)
	})
}

func TestRequestUngzipper(t *testing.T) {
	handler := RequestUngzipper{Limit: 16}.Handle(echo())

	testCases := []struct {
		name         string
		body         []byte
		encoding     string
		expectedCode int
		expectedBody string
	}{
		{name: "plain", body: []byte(`{"items":[]}`), expectedCode: http.StatusOK, expectedBody: `{"items":[]}`},
		{name: "gzip", body: gzipped(t, `{"items":[]}`), encoding: "gzip", expectedCode: http.StatusOK, expectedBody: `{"items":[]}`},
		{name: "broken gzip", body: []byte("not gzip"), encoding: "gzip", expectedCode: http.StatusBadRequest},
		{name: "inflates past limit", body: gzipped(t, strings.Repeat("a", 1024)), encoding: "gzip", expectedCode: http.StatusRequestEntityTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/submit", bytes.NewReader(tc.body))
			if tc.encoding != "" {
				r.Header.Set("Content-Encoding", tc.encoding)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			assert.Equal(t, tc.expectedCode, w.Code)
			if tc.expectedBody != "" {
				assert.Equal(t, tc.expectedBody, w.Body.String())
			}
		})
	}
}
