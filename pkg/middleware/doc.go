// Package middleware provides HTTP rate limiting for credential checks.
//
// Two limiters share the Limiter interface: RateLimiter keeps token buckets
// in process memory, DistributedRateLimiter counts fixed windows in Redis so
// every replica sees the same budget.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "warden:ratelimit")
//	h = middleware.RateLimit(limiter, cfg, keyFn, logger)(h)
//
// Limiter errors fail open: the request is served and the error logged.
package middleware
