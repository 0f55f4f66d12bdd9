// Package config handles configuration loading for agent-relay.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from the AGENT_RELAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/agent-relay/relay.yaml
//  3. ~/.config/agent-relay/relay.yaml
//
// "agent-relay init" writes a starter file to the first of these.
//
// # Environment Variables
//
// Values can reference environment variables with ${VAR_NAME}; unset
// variables expand to the empty string. After expansion these variables
// override the file:
//
//	AGENT_SERVICE_ENDPOINT  agent_service.endpoint
//	AGENT_SERVICE_API_KEY   agent_service.api_key
//	AGENT_ID                agent_service.default_agent_id
//	AGENT_RELAY_DB_PATH     database.path
//
// # Sections
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//	  grpc_addr: "0.0.0.0:50051"    # gRPC health; empty disables
//
//	agent_service:
//	  endpoint: "https://<resource>.services.ai.azure.com/api/projects/<project>"
//	  api_key: "${AGENT_SERVICE_API_KEY}"
//	  default_agent_id: "asst_..."
//	  mode: "poll"                  # poll or stream
//	  run_timeout: "5m"
//	  poll_interval: "1s"
//	  stream_idle_timeout: "2m"
//
//	database:
//	  path: "/var/lib/agent-relay/relay.db"   # ":memory:" or empty
//
//	auth:
//	  jwt_secret: "${AGENT_RELAY_JWT_SECRET}" # empty disables auth
//
// Durations use time.ParseDuration syntax. Missing values take the Default*
// constants.
package config
