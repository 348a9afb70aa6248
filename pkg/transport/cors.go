package transport

import "net/http"

// allowHeaders is the allow-list answered on preflight. The X-Stainless set
// covers the official OpenAI client SDKs, which send those headers on every
// request and fail preflight without them.
const allowHeaders = "Authorization,Content-Type,User-Agent,Accept,X-Requested-With," +
	"X-Stainless-Lang,X-Stainless-Package-Version,X-Stainless-Os,X-Stainless-Arch," +
	"X-Stainless-Retry-Count,X-Stainless-Runtime,X-Stainless-Runtime-Version," +
	"X-Stainless-Async,X-Stainless-Helper-Method,X-Stainless-Poll-Helper," +
	"X-Stainless-Custom-Poll-Interval"

const allowMethods = "GET,POST,PUT,PATCH,DELETE,HEAD,OPTIONS"

// CORS returns middleware that reflects the request origin. Preflight
// requests are answered directly with 204; other requests pass through and
// gain the allow-origin header on the way out.
func CORS() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if r.Method == http.MethodOptions && origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", "43200")
				h.Add("Vary", "Origin")
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")
			}
			next.ServeHTTP(w, r)
		})
	}
}
