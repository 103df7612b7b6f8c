package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/windregistry/masterdata/pkg/composables"
	"github.com/windregistry/masterdata/pkg/httpapi"
	"github.com/windregistry/masterdata/pkg/logging"
)

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
	// KeyFunc picks the bucket for a request. Defaults to the client IP.
	KeyFunc func(r *http.Request) string
}

func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// NewRedisStore shares rate limit buckets between instances through redis.
// redisURL is either a redis:// URL or a bare host:port.
func NewRedisStore(redisURL string) (limiter.Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: "masterdata:ratelimit",
	})
}

// RateLimit answers 429 with the JSON error envelope once a client exceeds
// RequestsPerPeriod.
func RateLimit(cfg RateLimitConfig) mux.MiddlewareFunc {
	if cfg.Period <= 0 {
		cfg.Period = time.Second
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	rate := limiter.Rate{Period: cfg.Period, Limit: int64(cfg.RequestsPerPeriod)}
	l := limiter.New(cfg.Store, rate, limiter.WithTrustForwardHeader(true))

	opts := []mstdlib.Option{
		mstdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", httpapi.RequestMeta(r))
		}),
		mstdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			composables.UseLogger(r.Context(), logging.Nop()).WithError(err).Error("rate limiter store failed")
			_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", httpapi.RequestMeta(r))
		}),
	}
	if cfg.KeyFunc != nil {
		opts = append(opts, mstdlib.WithKeyGetter(cfg.KeyFunc))
	}
	return mstdlib.NewMiddleware(l, opts...).Handler
}
