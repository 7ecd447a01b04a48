package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"
	limitstd "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"github.com/unrolled/secure"
)

type ctxKey string

const claimsKey ctxKey = "claims"

var errUnauthenticated = common.ErrUnauthenticated

func claimsFrom(ctx context.Context) *auth.AccessClaims {
	claims, _ := ctx.Value(claimsKey).(*auth.AccessClaims)
	return claims
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, common.ErrUnauthenticated)
}

// requireSession rejects requests without a valid access cookie and stores
// the claims in the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := h.sessions.Resolve(r.Context(), r)
		if claims == nil {
			writeServiceErr(w, errUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// requireRole runs after requireSession.
func (h *Handler) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := h.gate.Require(r.Context(), claimsFrom(r.Context()), role); err != nil {
				writeServiceErr(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info(r.Context(), "request",
				"request_id", chimid.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
			)
		})
	}
}

// observeDuration labels requests by route pattern, not raw path, to keep
// account ids out of the label set.
func observeDuration(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func secureHeaders(insecure bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		IsDevelopment:         insecure,
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "no-referrer",
	}).Handler
}

// newRateLimiter limits by client IP. rate uses the limiter format, e.g.
// "10-M"; an empty rate disables limiting. Both returned middlewares draw on
// one budget: strict answers 429 once it is spent, silent answers
// {"ok": true} without calling the handler.
func newRateLimiter(rate string) (strict, silent func(http.Handler) http.Handler, err error) {
	if rate == "" {
		pass := func(next http.Handler) http.Handler { return next }
		return pass, pass, nil
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, nil, err
	}
	instance := limiter.New(memory.NewStore(), parsed)
	onError := limitstd.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		writeErr(w, http.StatusInternalServerError, common.ErrInternal.Error())
	})
	strictMW := limitstd.NewMiddleware(instance, onError,
		limitstd.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeErr(w, http.StatusTooManyRequests, "rate limit exceeded")
		}),
	)
	silentMW := limitstd.NewMiddleware(instance, onError,
		limitstd.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			writeOK(w)
		}),
	)
	return strictMW.Handler, silentMW.Handler, nil
}
