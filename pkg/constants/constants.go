// Package constants provides shared constants used throughout sheetsync.
// This includes timeouts, limits, file permissions, and the defaults applied
// when configuration leaves a value unset.
package constants

import "time"

// Timeout constants
const (
	// DefaultHTTPTimeout is the per-request timeout for catalog and sheet APIs
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// MirrorOperationTimeout bounds a single mirror upsert
	MirrorOperationTimeout = 5 * time.Second

	// RecordTimeout bounds the remote calls made for a single record
	RecordTimeout = 90 * time.Second

	// CycleTimeout bounds fetching and indexing in one poll cycle.
	// Reconciliation is bounded per record by RecordTimeout
	CycleTimeout = 30 * time.Minute

	// RetryBackoff is the base backoff duration for retries
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for retries
	MaxRetryBackoff = 30 * time.Second

	// ShutdownTimeout bounds the status server's graceful shutdown
	ShutdownTimeout = 5 * time.Second
)

// Sync defaults
const (
	// DefaultSyncInterval is the delay between poll cycles
	DefaultSyncInterval = 30 * time.Second

	// BackoffMultiplier scales the interval after a failed cycle
	BackoffMultiplier = 2

	// DefaultRecordDelay paces successive catalog writes within a cycle
	DefaultRecordDelay = 500 * time.Millisecond

	// DefaultWorksheet is the worksheet read when it exists
	DefaultWorksheet = "VOIP"

	// DefaultCredentialsPath is the service account key file
	DefaultCredentialsPath = "excel_credentials.json"

	// DefaultAPIVersion is the Shopify Admin API version
	DefaultAPIVersion = "2024-01"

	// DefaultVendor is the vendor stamped on created products
	DefaultVendor = "Your Store"

	// WeightUnit is the unit used for variant weights
	WeightUnit = "g"

	// LockTTL is the expiry of the cycle lock; the holder refreshes it every
	// third of the TTL
	LockTTL = 10 * time.Minute
)

// File permission constants
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for sensitive files like credentials (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants
const (
	// MaxRetries is the maximum number of attempts for a rate limited request
	MaxRetries = 3

	// CatalogPageSize is the number of products requested per listing page
	CatalogPageSize = 250

	// MaxErrorBodySize caps how much of an error response body is kept
	MaxErrorBodySize = 4096
)

// Rate limiting constants
const (
	// DefaultRateLimit is the sustained requests per second allowed against the catalog
	DefaultRateLimit = 2

	// BurstSize is the token bucket burst size for rate limiting
	BurstSize = 4
)
