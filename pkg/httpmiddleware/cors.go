package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin request handling.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to make cross-origin requests.
	// Empty, or a single "*", permits any origin.
	AllowOrigins []string

	// AllowMethods lists methods permitted in actual requests. Empty means
	// "GET, POST, PUT, DELETE, OPTIONS".
	AllowMethods []string

	// AllowHeaders lists request headers clients may send. Empty means the
	// preflight's Access-Control-Request-Headers is echoed back.
	AllowHeaders []string

	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers. The
	// wildcard origin is invalid with credentials, so enabling this forces
	// origin echo even when AllowOrigins is empty.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header, negative sends "0" to disable caching.
	MaxAge int
}

// cors is the resolved, precomputed form of CORSConfig.
type cors struct {
	wildcard    bool
	origins     map[string]string // lowercased -> configured spelling
	methods     string
	headers     string
	expose      string
	credentials bool
	maxAge      string
}

func (c *cors) resolveOrigin(origin string) string {
	if c.wildcard {
		return "*"
	}
	// Matching is case-insensitive; the configured spelling is echoed.
	return c.origins[strings.ToLower(origin)]
}

// CORS builds a middleware that answers preflights and decorates actual
// cross-origin responses. Vary headers are set on every path that depends on
// the Origin so shared caches never serve one origin's response to another.
func CORS(cfg CORSConfig) Middleware {
	c := &cors{
		wildcard:    len(cfg.AllowOrigins) == 0,
		origins:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			c.wildcard = true
			break
		}
		c.origins[strings.ToLower(o)] = o
	}
	// Credentialed responses must name the origin, never "*".
	if c.credentials {
		c.wildcard = false
	}
	if c.methods == "" {
		c.methods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		c.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		c.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Same-origin or non-browser request.
				if !c.wildcard {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				c.preflight(w, r, origin)
				return
			}

			if !c.wildcard {
				w.Header().Add("Vary", "Origin")
			}
			if allow := c.resolveOrigin(origin); allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
				if c.credentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if c.expose != "" {
					w.Header().Set("Access-Control-Expose-Headers", c.expose)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// preflight terminates an OPTIONS preflight with 204. A disallowed origin
// gets the 204 without any allow headers, which the browser treats as a
// denial.
func (c *cors) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allow := c.resolveOrigin(origin)
	if allow == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allow)
	h.Set("Access-Control-Allow-Methods", c.methods)

	if c.headers != "" {
		h.Set("Access-Control-Allow-Headers", c.headers)
	} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
		h.Set("Access-Control-Allow-Headers", req)
	}
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if c.maxAge != "" {
		h.Set("Access-Control-Max-Age", c.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}
