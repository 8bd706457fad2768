package mirror

import (
	"net/url"
	"strings"

	"github.com/agentstation/sheetsync/pkg/errors"
)

// Open builds a Store from a DSN. The scheme selects the backend:
// memory:// (or empty), postgres:// or postgresql://, and mysql://.
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemory(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, errors.WrapParse("url", "mirror dsn", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "memory", "mem":
		return NewMemory(), nil
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	case "mysql":
		return NewMySQL(dsn)
	default:
		return nil, errors.NewValidationError("mirror_dsn", parsed.Scheme, "unsupported mirror backend")
	}
}

// PostgresDSN builds a postgres URL from discrete connection settings.
func PostgresDSN(host, port, name, user, password, sslMode string) string {
	if port == "" {
		port = "5432"
	}
	if sslMode == "" {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}
