package claims

import (
	"os"
	"path/filepath"
)

// Home returns the goclaims home directory.
// It defaults to ~/.goclaims but can be overridden with the CLAIMS_HOME
// environment variable.
func Home() string {
	if v := os.Getenv("CLAIMS_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".goclaims")
}

// DefaultDBPath returns the default SQLite database path (~/.goclaims/claims.db).
func DefaultDBPath() string {
	return filepath.Join(Home(), "claims.db")
}

// EnsureHome creates the home directory if it doesn't exist.
func EnsureHome() error {
	return os.MkdirAll(Home(), 0o755)
}
