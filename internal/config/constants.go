package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. The request timeout bounds webhook processing too:
// every event from a delivery is handled synchronously before the response,
// so the deadline is what keeps a slow database from hanging the platform.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Outbound Graph API call timeout
const GraphRequestTimeout = 10 * time.Second

// Background job intervals
const RetentionJobInterval = 1 * time.Hour

// Default rate limiting for the inbox read API
const DefaultRateLimitPerMin = 60
