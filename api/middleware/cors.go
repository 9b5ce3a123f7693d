package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

var devCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8080",
}

// CORS returns middleware that allows the storefront origin, plus the local
// dev servers when dev is set. Credentials are allowed so the client cookie
// travels with cross-origin requests.
func CORS(publicOrigin string, dev bool) func(http.Handler) http.Handler {
	origins := []string{}
	if publicOrigin != "" {
		origins = append(origins, publicOrigin)
	}
	if dev {
		origins = append(origins, devCORSOrigins...)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
