package echoapi

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// rateLimitMiddleware caps the AI endpoints at perMinute requests per user, with bursts of the same size.
// A non-positive perMinute disables the limit.
func rateLimitMiddleware(perMinute int) echo.MiddlewareFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterOf := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[key]
		if !ok {
			l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
			limiters[key] = l
		}
		return l
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if perMinute <= 0 {
			return next
		}
		return func(ctx echo.Context) error {
			key := ctx.RealIP()
			if usr, err := getContextUser(ctx); err == nil {
				key = usr.ID
			}
			if !limiterOf(key).Allow() {
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}
