package middleware

import (
	"net/http"
	"strings"
)

// CORSPolicy is a fixed set of cross-origin response headers.
type CORSPolicy struct {
	AllowOrigin  string
	AllowMethods []string
	AllowHeaders []string
}

// PublicReadPolicy lets any origin read static assets. The 3D viewer embedded
// in third-party menus loads models cross-origin.
var PublicReadPolicy = CORSPolicy{
	AllowOrigin:  "*",
	AllowMethods: []string{http.MethodGet, http.MethodOptions},
	AllowHeaders: []string{"Content-Type"},
}

// CORS applies policy to every response and answers preflight requests with
// 204.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	methods := strings.Join(policy.AllowMethods, ", ")
	headers := strings.Join(policy.AllowHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", policy.AllowOrigin)
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
