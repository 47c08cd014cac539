package config

import (
	"os"
	"path/filepath"
)

// appDir returns ~/.config/usage-ledger, or "." without a home directory.
func appDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(homeDir, ".config", "usage-ledger")
}

// defaultDBPath returns the default database file path.
//
// Returns: ~/.config/usage-ledger/ledger.db.
func defaultDBPath() string {
	return filepath.Join(appDir(), "ledger.db")
}

// defaultInboxDir returns the default export inbox.
//
// Returns: ~/.config/usage-ledger/inbox/.
func defaultInboxDir() string {
	return filepath.Join(appDir(), "inbox")
}

// DefaultConfigPath returns the default configuration file path.
//
// Returns: ~/.config/usage-ledger/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(appDir(), "config.yaml")
}

// SearchPaths returns the configuration files Load considers, in order of
// precedence. USAGE_LEDGER_CONFIG, when set, comes first.
func SearchPaths() []string {
	var paths []string
	if p := os.Getenv(EnvConfig); p != "" {
		paths = append(paths, p)
	}

	return append(paths,
		"./usage-ledger.yaml",
		DefaultConfigPath(),
		"/etc/usage-ledger/config.yaml",
	)
}
