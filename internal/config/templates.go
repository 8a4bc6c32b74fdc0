package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# F&O Ledger Configuration

[analysis]
# Analysis horizon (YYYY-MM-DD). Lots are expanded into daily positions
# only for business days inside it.
start_date = "2024-04-01"
end_date = "2025-03-31"
# Timezone used to derive trade dates from execution timestamps
timezone = "Asia/Kolkata"
# Monthly contract expiry: "last_business_day" or "last_thursday"
monthly_expiry_rule = "last_business_day"
# Exchange holidays (YYYY-MM-DD)
holidays = []
# Parallel workers for strategy classification and pnl attribution
workers = 4

[storage]
# Save runs to sqlite with "analyze --save"
enabled = true
# Database file; empty means <config dir>/ledger.db
db_path = ""

[logging]
# Level: debug, info, warn, error
level = "info"
console = true
file = false
file_path = ""
# Rotation: megabytes per file, files kept, days kept
max_size = 50
max_backups = 5
max_age = 30

[metrics]
# Serve Prometheus metrics while a run executes
enabled = false
listen_addr = "127.0.0.1:9464"
`

const credentialsTemplate = `# F&O Ledger Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
# Session of an already authorized Kite Connect app
api_key = ""
access_token = ""
`

// createTemplate writes content to configDir/name unless the file exists.
func createTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}

	return nil
}

// WriteTemplates creates config.toml and credentials.toml in configDir if
// they do not exist and returns the config file path.
func WriteTemplates(configDir string) (string, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
		return "", err
	}
	if err := createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
