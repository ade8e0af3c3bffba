// Package config handles loading and validation of client configuration.
//
// Configuration is loaded from YAML files with support for environment
// variable expansion using ${VAR_NAME} syntax. Duration values are
// specified as strings (e.g., "10s", "1s") and parsed into time.Duration.
//
// Example configuration:
//
//	server:
//	  base_url: "https://assistant.example.com"
//	  csrf_token: "${CHATSYNC_CSRF_TOKEN}"
//
//	transport:
//	  timeout: "10s"
//	  retry_attempts: 3
//	  retry_delay: "1s"
//
//	session:
//	  storage_path: "~/.chatsync/session"
//
//	cache:
//	  dedup_ttl: "5m"
//	  dedup_max_size: 10000
//
//	archive:
//	  path: "~/.chatsync/archive.db"
//
//	logging:
//	  level: "info"
//	  format: "json"
package config
