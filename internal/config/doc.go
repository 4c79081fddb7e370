// Package config handles configuration loading for chatloom.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CHATLOOM_CONFIG environment variable
//  2. ./config.yaml (current directory)
//  3. ~/.config/chatloom/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${CHATLOOM_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"   # API and streaming endpoints
//
// Database:
//
//	database:
//	  path: "/var/lib/chatloom/chatloom.db"
//
// Uploads:
//
//	uploads:
//	  dir: "/var/lib/chatloom/uploads"  # defaults to a temp dir when empty
//
// Logging:
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "text"   # text or json
package config
