package store

import "strings"

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// come as URLs (postgres://...) or key=value connection strings; anything
// else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
