package middleware

import "net/http"

// CORS headers sent on every response.
const (
	allowOrigin  = "*"
	allowMethods = "GET, OPTIONS, POST"
	allowHeaders = "*"
)

// CORS adds the API's fixed CORS headers to every response and answers
// every preflight (OPTIONS) request itself with 200 "OK" in plain text.
//
// It must run before the router matches routes: OPTIONS is accepted on any
// path, including ones with no handler.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)

		if r.Method == http.MethodOptions {
			h.Set("Content-Type", "text/plain;charset=UTF-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
