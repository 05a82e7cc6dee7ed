// Package playmesh is a cloud gaming fleet control plane.
//
// # Overview
//
// Playmesh provisions GPU hosts across multiple cloud providers, places each
// session on the machine closest to the player, and supervises the fleet
// through its whole lifecycle. Spend is rolled up continuously against a
// configurable rate table.
//
// The platform consists of three main components:
//   - API Server: REST API and websocket event feed for session management
//   - Orchestrator: multi-provider provisioning with geographic placement
//   - Supervisor: health probing, idle reaping, and spend enforcement
//
// # Architecture
//
//	┌─────────────────┐       ┌─────────────────┐
//	│  Game Clients   │       │  Session Agents │
//	│  (REST + WS)    │       │  (on each VM)   │
//	└────────┬────────┘       └────────┬────────┘
//	         │                         │
//	┌────────▼─────────────────────────▼────────┐
//	│              API Server (Echo)            │
//	└────────┬─────────────────────────┬────────┘
//	         │                         │
//	┌────────▼────────┐       ┌────────▼────────┐
//	│  Orchestrator   │       │   Supervisor    │
//	│  (placement +   │       │  (liveness +    │
//	│   provisioning) │       │   spend caps)   │
//	└────────┬────────┘       └────────┬────────┘
//	         │                         │
//	┌────────▼─────────────────────────▼────────┐
//	│         Storage Layer (SQLite)            │
//	└───────────────────────────────────────────┘
//
// # Core Features
//
// Session Orchestration:
//   - One live host per (user, platform); repeat requests reuse it
//   - Tiered hardware profiles resolved from platform metadata
//   - Provider failover when the preferred provider has no capacity
//   - Bounded provisioning concurrency with create retries
//
// Geographic Placement:
//   - Marketplace node ranking by great-circle distance, then price
//   - Region selection for managed providers without node inventory
//   - Gazetteer-backed geocoding of node locations
//
// Fleet Supervision:
//   - Jittered liveness sweeps probing each agent's health endpoint
//   - Strike accounting before a host is failed and destroyed
//   - Idle reaping, session-length hard stops, stopped-host TTL
//   - Monthly soft and hard spend caps with fleet drain
//
// Billing:
//   - Decimal-precise hourly rollup by provider, tier, and platform family
//   - Month-to-date and day-to-date reports with alert thresholds
//
// # Usage
//
// Start the control plane:
//
//	playmesh server --config configs/config.yaml
//
// Mint a token for a session agent:
//
//	playmesh token agent host:f3a91c
//
// Print a spend report:
//
//	playmesh billing report --provider tensordock
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (configs/config.yaml)
//   - Environment variables (PM_ prefix)
//   - .env file
//
// Example configuration:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8090
//	providers:
//	  tensordock:
//	    enabled: true
//	    api_token: tok-...
//	billing:
//	  rate_table_path: configs/rates.yaml
//	  monthly_hard_cap_usd: 500
//	security:
//	  agent_token_secret: change-me-in-production
//
// # API Endpoints
//
// Session Management:
//   - POST   /sessions                   - Request a session
//   - GET    /sessions/:host_id          - Get session state
//   - POST   /sessions/:host_id/stop     - Stop a session
//   - DELETE /sessions/:host_id          - Destroy a session's host
//
// Platform Profiles:
//   - GET /platforms            - List platform profiles
//   - GET /platforms/:platform  - Get one profile
//   - PUT /platforms/:platform  - Create or replace a profile
//
// Placement and Billing:
//   - GET /placements/candidates  - Preview placement for a provider
//   - GET /billing                - Spend rollup over a window
//
// Agent API (JWT-guarded):
//   - GET  /hosts/:vm_token/manifest     - Session manifest for an agent
//   - POST /hosts/:host_id/started       - Game process is up
//   - POST /hosts/:host_id/save_event    - Save uploaded
//   - POST /hosts/:host_id/idle          - Last client disconnected
//   - POST /hosts/:host_id/ended         - Session ended
//
// WebSocket:
//   - GET /ws/events  - Real-time fleet lifecycle events
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o playmesh ./cmd/playmesh
//
// # Technology Stack
//
//   - Go 1.25+
//   - Echo v4 (Web framework)
//   - SQLite via modernc.org/sqlite (Storage)
//   - Cobra + Viper (CLI and configuration)
//   - gorilla/websocket (Event feed)
//   - golang-jwt/jwt (Agent auth)
//   - shopspring/decimal (Billing arithmetic)
//
// # License
//
// Playmesh is open source software.
package playmesh
