// Package config loads warden's runtime configuration from WARDEN_*
// environment variables and the optional expiration policy file.
//
// # Environment
//
//	WARDEN_HOST, WARDEN_PORT, WARDEN_HEALTH_PORT      listen addresses
//	WARDEN_STORAGE_TYPE                               memory | postgres
//	WARDEN_POSTGRES_URL, WARDEN_POSTGRES_REPLICA_URLS PostgreSQL
//	WARDEN_REDIS_URL                                  dedup, view cache, rate limits (optional)
//	WARDEN_AUTH_RATE_LIMIT, WARDEN_AUTH_RATE_BURST    authenticate attempts per minute
//	WARDEN_TRUST_PROXY_HEADERS                        key rate limits on X-Forwarded-For
//	WARDEN_S3_BUCKET, WARDEN_S3_ENDPOINT              audit archive
//	WARDEN_POLICY_FILE                                YAML expiration policy
//	WARDEN_SWEEPER_SCHEDULE                           cron schedule for the expiry sweeper
//	WARDEN_LOG_LEVEL, WARDEN_OTEL_*                   observability
//
// # Policy file
//
// Durations accept Go syntax ("2160h") or whole days ("90d"):
//
//	defaultExpiration: 90d
//	maxExpiration: 365d
//	allowNoExpiration: false
//
// PolicyWatcher reloads the file on change. A file that fails to parse or
// validate is logged and the previous policy stays in effect.
package config
