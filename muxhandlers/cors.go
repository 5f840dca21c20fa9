package muxhandlers

import (
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

// ErrNoAllowedOrigins is returned when CORSConfig.AllowedOrigins is empty.
var ErrNoAllowedOrigins = errors.New("cors: at least one allowed origin is required")

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowedOrigins is a list of exact origins, "*" for any origin, or
	// subdomain patterns like "https://*.example.com".
	AllowedOrigins []string

	// AllowedHeaders lists the request headers a preflight may approve.
	// When empty the Access-Control-Request-Headers value is reflected.
	AllowedHeaders []string

	// ExposeHeaders lists the response headers visible to client code.
	ExposeHeaders []string

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Zero omits the header.
	MaxAge int
}

type originPattern struct {
	prefix string
	suffix string
}

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	patterns []originPattern
}

func newOriginMatcher(origins []string) (*originMatcher, error) {
	m := &originMatcher{exact: make(map[string]struct{}, len(origins))}

	for _, o := range origins {
		if o == "*" {
			m.any = true
			continue
		}

		lower := strings.ToLower(o)

		prefix, suffix, found := strings.Cut(lower, "*")
		if !found {
			m.exact[lower] = struct{}{}
			continue
		}

		if strings.Contains(suffix, "*") {
			return nil, errors.New("cors: origin pattern contains multiple wildcards: " + o)
		}

		m.patterns = append(m.patterns, originPattern{prefix: prefix, suffix: suffix})
	}

	return m, nil
}

func (m *originMatcher) match(origin string) bool {
	if m.any {
		return true
	}

	lower := strings.ToLower(origin)
	if _, ok := m.exact[lower]; ok {
		return true
	}

	for _, p := range m.patterns {
		if len(lower) >= len(p.prefix)+len(p.suffix) &&
			strings.HasPrefix(lower, p.prefix) &&
			strings.HasSuffix(lower, p.suffix) {
			return true
		}
	}

	return false
}

// CORSMiddleware returns a middleware that answers CORS preflight requests
// with 204 and decorates actual requests from allowed origins. Allowed
// methods are discovered from the routes of router matching the request
// path.
//
// The middleware must wrap the router rather than be registered with
// router.Use: preflights target paths that have no OPTIONS route, and
// router middleware never runs for unmatched requests.
func CORSMiddleware(router *mux.Router, cfg CORSConfig) (mux.MiddlewareFunc, error) {
	if len(cfg.AllowedOrigins) == 0 {
		return nil, ErrNoAllowedOrigins
	}

	origins, err := newOriginMatcher(cfg.AllowedOrigins)
	if err != nil {
		return nil, err
	}

	reflectHeaders := len(cfg.AllowedHeaders) == 0 || slices.Contains(cfg.AllowedHeaders, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !origins.match(origin) {
				next.ServeHTTP(w, r)
				return
			}

			if origins.any {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				if len(cfg.ExposeHeaders) > 0 {
					w.Header().Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ","))
				}

				next.ServeHTTP(w, r)
				return
			}

			if methods := routeMethods(router, r); len(methods) > 0 {
				w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ","))
			}

			if reflectHeaders {
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
			} else {
				w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ","))
			}

			if cfg.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}

			w.Header().Add("Vary", "Access-Control-Request-Method")
			w.Header().Add("Vary", "Access-Control-Request-Headers")
			w.WriteHeader(http.StatusNoContent)
		})
	}, nil
}

// routeMethods returns the methods of every route matching the request
// path, in registration order and without duplicates.
func routeMethods(router *mux.Router, r *http.Request) []string {
	var methods []string

	_ = router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		declared, err := route.GetMethods()
		if err != nil {
			return nil
		}

		for _, method := range declared {
			if slices.Contains(methods, method) {
				continue
			}

			probe := r.Clone(r.Context())
			probe.Method = method
			if route.Match(probe, &mux.RouteMatch{}) {
				methods = append(methods, method)
			}
		}

		return nil
	})

	return methods
}
