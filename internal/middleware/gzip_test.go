package middleware

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

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"received":` + string(body) + `}`))
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		compressRequest bool
		acceptEncoding  string
		wantEncoding    string
	}{
		{name: "client accepts gzip", acceptEncoding: "gzip, deflate", wantEncoding: "gzip"},
		{name: "client does not accept gzip"},
		{name: "compressed request body", compressRequest: true, acceptEncoding: "gzip", wantEncoding: "gzip"},
		{name: "compressed request, plain response", compressRequest: true},
	}

	const payload = `{"address":"Самовывоз"}`

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(payload)
			if tt.compressRequest {
				body = gzipBytes(t, payload)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders", body)
			req.Header.Set("Content-Type", "application/json")
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			assert.Equal(t, http.StatusCreated, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var reader io.Reader = res.Body
			if tt.wantEncoding == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}

			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.JSONEq(t, `{"received":`+payload+`}`, string(got))
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
