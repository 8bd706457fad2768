// Package state provides the durable pieces of the sync loop: fingerprint
// stores and the cross-process sync lock.
package state

import (
	"net/url"
	"strings"

	"github.com/agentstation/sheetsync/pkg/detector"
	"github.com/agentstation/sheetsync/pkg/errors"
)

// FingerprintKey is the redis key holding the last committed fingerprint.
const FingerprintKey = "sheetsync:fingerprint"

// OpenStore builds a fingerprint store from a DSN:
//
//	""             in-memory, lost on restart
//	memory://      same as empty
//	file:///path   JSON file, written atomically
//	redis://host   redis key FingerprintKey
func OpenStore(dsn string) (detector.Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return detector.NewMemoryStore(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.WrapParse("url", "state dsn", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "memory", "mem":
		return detector.NewMemoryStore(), nil
	case "file":
		path := parsed.Path
		if parsed.Host != "" {
			path = parsed.Host + path
		}
		if path == "" {
			return nil, errors.NewValidationError("state_dsn", dsn, "file path is required")
		}
		return NewFileStore(path), nil
	case "redis", "rediss":
		client, err := NewRedisClient(dsn)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, FingerprintKey), nil
	default:
		return nil, errors.NewValidationError("state_dsn", parsed.Scheme, "unsupported state backend")
	}
}
