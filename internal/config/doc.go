// Package config loads coven-chat client configuration.
//
// # Configuration File
//
// The file is YAML unless its name ends in ".toml". Default location:
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven-chat/config.yaml
//  3. ~/.config/coven-chat/config.yaml
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR_NAME}; unset
// variables expand to the empty string:
//
//	auth:
//	  token: "${COVEN_CHAT_TOKEN}"
//
// # Example
//
//	server:
//	  base_url: "http://localhost:5001/api"
//	  socket_url: "ws://localhost:5001/ws"
//	  request_timeout: "15s"
//
//	socket:
//	  read_timeout: "60s"
//	  dedupe_window: "5m"   # empty disables redelivery filtering
//	  dedupe_size: 1000
//
//	database:
//	  path: "~/.local/share/coven-chat/chat.db"   # empty disables persistence
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
