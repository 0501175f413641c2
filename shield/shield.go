// Package shield provides the HTTP middleware of the famousjsons API: CORS
// allow-list, security headers, request tracing, per-IP rate limits, body
// caps and HEAD handling.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(shield.CORSConfig{AllowedOrigins: origins}) {
//	    r.Use(mw)
//	}
//	r.With(limiter.Middleware).Post("/updateState", h)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key of the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// Stack returns the middleware applied to every route, outermost first:
// HeadToGet, TraceID, SecurityHeaders, CORS.
func Stack(cors CORSConfig) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		TraceID,
		SecurityHeaders(DefaultHeaders()),
		CORS(cors),
	}
}
