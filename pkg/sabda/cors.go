package sabda

import (
	"net/http"
	"strings"
)

// corsMiddleware answers preflight requests and decorates responses with
// the configured CORS headers.
func corsMiddleware(cfg CORSConfig, next http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	allowAny := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowAny = true
			continue
		}
		if o != "" {
			allowed[strings.ToLower(o)] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			_, ok := allowed[strings.ToLower(strings.TrimRight(origin, "/"))]
			if allowAny || ok {
				h := w.Header()
				// A credentialed response may not use the wildcard origin.
				if allowAny && !cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					h.Set("Access-Control-Allow-Methods", methods)
					if headers == "*" {
						if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
							h.Set("Access-Control-Allow-Headers", req)
						}
					} else if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					}
					h.Set("Access-Control-Max-Age", "600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
