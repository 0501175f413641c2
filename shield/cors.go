package shield

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// CORSConfig is the cross-origin policy. Only listed origins get CORS
// headers; "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string      `yaml:"allowed_origins"`
	AllowedMethods []string      `yaml:"allowed_methods"`
	AllowedHeaders []string      `yaml:"allowed_headers"`
	MaxAge         time.Duration `yaml:"max_age"`
}

// DefaultOrigins are the site itself and the local development server.
var DefaultOrigins = []string{"http://localhost:3000", "https://famousjsons.com"}

func (c *CORSConfig) defaults() {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = DefaultOrigins
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization", "Content-Length", "X-Requested-With"}
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Minute
	}
}

// CORS applies cfg through go-chi/cors. Preflights never reach next: they
// are answered 204 when go-chi/cors granted them, 403 otherwise (origin,
// method or headers not allowed). Simple requests always pass through;
// without CORS headers the browser withholds the response from other origins.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	cfg.defaults()
	c := cors.New(cors.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		AllowedMethods:     cfg.AllowedMethods,
		AllowedHeaders:     cfg.AllowedHeaders,
		MaxAge:             int(cfg.MaxAge.Seconds()),
		OptionsPassthrough: true,
	})
	answer := c.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if w.Header().Get("Access-Control-Allow-Origin") == "" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	return func(next http.Handler) http.Handler {
		actual := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				answer.ServeHTTP(w, r)
				return
			}
			actual.ServeHTTP(w, r)
		})
	}
}
