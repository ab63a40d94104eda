// Package config loads and validates the chat-gateway configuration.
//
// Configuration is a single YAML file resolved once at process start and
// passed by reference into the components that need it; business logic
// never reads the environment directly. The file supports ${VAR} expansion
// and Go duration strings for interval fields, for example:
//
//	server:
//	  http_addr: ":8080"
//	database:
//	  path: /var/lib/chat-gateway/gateway.db
//	auth:
//	  jwt_secret: ${JWT_SECRET}
//	orchestrator:
//	  grpc_addr: localhost:50051
//	chat:
//	  heartbeat_interval: 15s
//	  guest_session_ttl: 12h
//
// The presence of orchestrator.grpc_addr selects the gRPC streaming
// transport; when absent, the chunked-HTTP transport is used against
// orchestrator.base_url.
package config
