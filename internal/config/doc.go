// Package config handles configuration loading for the netwarden hub.
//
// Configuration is loaded from YAML files with environment variable
// expansion and Go duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${NETWARDEN_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # Agent API and dashboard
//
// Database:
//
//	database:
//	  path: "/var/lib/netwarden/hub.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${NETWARDEN_JWT_SECRET}"  # At least 32 bytes
//	  session_ttl: "12h"
//
// Agent cadence:
//
//	agents:
//	  heartbeat_interval: "30s"
//	  sync_interval: "5m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
