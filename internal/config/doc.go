// Package config handles configuration loading for vss-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, then overlaid with deployment environment variables. Every field
// has a default, so a deployment can run from the environment alone.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path passed with --config
//  2. Path from VSS_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/vss/gateway.yaml (or ~/.config/vss/gateway.yaml)
//
// Files ending in .toml are decoded as TOML; anything else as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  admin_key: "${VSS_ADMIN_KEY}"
//
// # Environment Overrides
//
// These variables take precedence over the file:
//
//	DATABASE_URL            postgres connection string (selects postgres)
//	VSS_DB_PATH             sqlite or bbolt file path
//	AUTH_KEY                hex secp256k1 public key for client tokens
//	SELF_HOST               disable client token checks
//	ADMIN_KEY               key for the migration endpoints
//	MIGRATION_URL           export endpoint to backfill from
//	MIGRATION_START_INDEX   first window offset
//	MIGRATION_BATCH_SIZE    window size
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:3000"
//	  read_header_timeout: "10s"
//
//	database:
//	  backend: sqlite        # sqlite, postgres, bolt, dynamodb, memory
//	  driver: sqlite         # sqlite (modernc) or sqlite3 (mattn, cgo)
//	  path: ./vss.db
//	  url: postgres://...
//	  dynamodb:
//	    table: vss_db
//	    region: us-east-1
//	    endpoint: ""          # e.g. http://localhost:8000 for DynamoDB Local
//
//	auth:
//	  public_key: "02..."    # 33 or 65 byte hex
//	  self_hosted: false
//	  admin_key: ""
//	  leeway: "60s"
//	  token_cache_ttl: "5m"
//	  token_cache_size: 10000
//
//	migration:
//	  source_url: ""
//	  start_index: 0
//	  batch_size: 100
//	  request_timeout: "30s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "vss-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load validates that the selected backend has a target, that a parseable
// public key is present unless self_hosted is set, and that the migration
// window is sane.
package config
