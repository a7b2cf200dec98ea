package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS for the checkout extension endpoints.
type CORSConfig struct {
	// AllowOrigins lists exact origins or single-label wildcards such as
	// "https://*.shopifycdn.com". Empty or "*" allows any origin.
	AllowOrigins []string
	// AllowMethods defaults to GET, POST, PUT, DELETE, OPTIONS.
	AllowMethods []string
	// AllowHeaders echoes Access-Control-Request-Headers when empty.
	AllowHeaders  []string
	ExposeHeaders []string
	// MaxAge in seconds; zero omits the header.
	MaxAge int
}

type originMatcher struct {
	any      bool
	exact    map[string]string
	suffixes []wildcard
}

type wildcard struct {
	scheme string // "https://"
	suffix string // ".shopifycdn.com"
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{any: len(origins) == 0, exact: make(map[string]string)}
	for _, o := range origins {
		switch {
		case o == "*":
			m.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "*")
			m.suffixes = append(m.suffixes, wildcard{
				scheme: strings.ToLower(scheme),
				suffix: strings.ToLower(host),
			})
		default:
			m.exact[strings.ToLower(o)] = o
		}
	}
	return m
}

// match returns the Access-Control-Allow-Origin value for origin, or "".
func (m originMatcher) match(origin string) string {
	if m.any {
		return "*"
	}
	lower := strings.ToLower(origin)
	if o, ok := m.exact[lower]; ok {
		return o
	}
	for _, w := range m.suffixes {
		rest, ok := strings.CutPrefix(lower, w.scheme)
		if !ok {
			continue
		}
		label, ok := strings.CutSuffix(rest, w.suffix)
		if ok && label != "" && !strings.ContainsAny(label, "./:") {
			return origin
		}
	}
	return ""
}

// CORS answers preflight requests and decorates actual requests from allowed
// origins. Credentials are never allowed; callers authenticate with bearer
// tokens.
func CORS(cfg CORSConfig) Middleware {
	origins := newOriginMatcher(cfg.AllowOrigins)

	methods := strings.Join(cfg.AllowMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	headers := strings.Join(cfg.AllowHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(cfg.MaxAge)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if !origins.any {
				h.Add("Vary", "Origin")
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			allow := origins.match(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allow != "" {
					h.Set("Access-Control-Allow-Origin", allow)
					h.Set("Access-Control-Allow-Methods", methods)
					if headers != "" {
						h.Set("Access-Control-Allow-Headers", headers)
					} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
						h.Set("Access-Control-Allow-Headers", req)
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allow != "" {
				h.Set("Access-Control-Allow-Origin", allow)
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
