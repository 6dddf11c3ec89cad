package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists who may call the appointment API from a browser. An origin
// is either an exact "scheme://host[:port]", "*" or a "*.clinic.example"
// suffix wildcard.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// APIPolicy covers the verbs the appointment routes use and the headers the
// front desk sends with them.
func APIPolicy(origins []string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", RequestIDHeader, "traceparent", "tracestate"},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	any         bool
	exact       map[string]bool
	suffixes    []string
	credentials bool
	preflight   http.Header
}

func compileCORS(p CORSPolicy) (corsRules, bool) {
	rules := corsRules{exact: map[string]bool{}, credentials: p.AllowCredentials, preflight: http.Header{}}
	for _, o := range trimAll(p.AllowedOrigins) {
		o = strings.ToLower(o)
		switch {
		case o == "*":
			rules.any = true
		case strings.HasPrefix(o, "*."):
			rules.suffixes = append(rules.suffixes, o[1:])
		default:
			rules.exact[o] = true
		}
	}
	if !rules.any && len(rules.exact) == 0 && len(rules.suffixes) == 0 {
		return rules, false
	}

	if m := trimAll(p.AllowedMethods); len(m) > 0 {
		rules.preflight.Set("Access-Control-Allow-Methods", strings.Join(m, ", "))
	}
	if h := trimAll(p.AllowedHeaders); len(h) > 0 {
		rules.preflight.Set("Access-Control-Allow-Headers", strings.Join(h, ", "))
	}
	if secs := int(p.MaxAge / time.Second); secs > 0 {
		rules.preflight.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}
	return rules, true
}

// allow returns the Access-Control-Allow-Origin value for origin.
func (c corsRules) allow(origin string) (string, bool) {
	lower := strings.ToLower(origin)
	if c.exact[lower] {
		return origin, true
	}
	if u, err := url.Parse(lower); err == nil && u.Host != "" {
		host := u.Hostname()
		for _, s := range c.suffixes {
			if strings.HasSuffix(host, s) {
				return origin, true
			}
		}
	}
	if c.any {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflights itself and decorates simple requests. Requests
// without an Origin header pass straight through. An empty origin list
// disables the middleware.
func WithCORS(p CORSPolicy) Middleware {
	rules, enabled := compileCORS(p)
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			isPreflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			h.Add("Vary", "Origin")
			allowed, ok := rules.allow(origin)
			switch {
			case !ok && isPreflight:
				WriteError(w, http.StatusForbidden, "origin not allowed", nil)
				return
			case !ok:
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if !isPreflight {
				next.ServeHTTP(w, r)
				return
			}
			for k, v := range rules.preflight {
				h[k] = v
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
