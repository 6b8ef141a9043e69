// Package config handles configuration loading for coven-chat.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// A missing file is not an error: LoadOrDefault returns Default(), an echo
// model with a SQLite database under ~/.local/share/coven. Files ending in
// .toml are parsed as TOML, anything else as YAML.
//
// # Environment Variable Expansion
//
//	model:
//	  token: "${COVEN_TOKEN}"
//
// # Configuration Sections
//
//	database:
//	  backend: "sqlite"        # sqlite, file, memory
//	  driver: "sqlite"         # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "~/.local/share/coven/chat.db"
//	  key: "saved_conversations"
//
//	model:
//	  provider: "gateway"      # echo, gateway
//	  url: "http://localhost:8080"
//	  grpc_addr: "localhost:50051"
//	  agent_id: "my-agent"
//	  token: "${COVEN_TOKEN}"
//	  request_timeout: "30s"
//	  echo_delay: "40ms"
//
//	availability:
//	  check: "http"            # http (/health/ready) or grpc (grpc.health.v1)
//	  poll_interval: "30s"     # empty disables background polling
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text, json
package config
