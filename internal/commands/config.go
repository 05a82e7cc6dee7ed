package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runShowConfig,
}

var initConfigCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	RunE:  runInitConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(initConfigCmd)
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	fmt.Println(string(data))
	return nil
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := `# Playmesh Configuration

server:
  host: 0.0.0.0
  port: 8090
  read_timeout: 30s
  write_timeout: 30s
  shutdown_timeout: 10s
  debug: false

storage:
  path: playmesh.db

providers:
  tensordock:
    enabled: true
    api_url: https://marketplace.tensordock.com/api/v0
    api_token: ""
    ssh_user: playmesh
    ssh_private_key_path: ""
    ssh_public_key_path: ""
  cloudpad:
    enabled: false
    binary_path: cloudpad
    config_path: ""
    project_id: ""

external:
  geocoder_url: https://nominatim.openstreetmap.org/search
  location_finder_url: ""

orchestrator:
  pool_size: 32
  default_auto_stop_timeout: 30m
  wait_ready:
    low: 5m
    mid: 10m
    high: 10m

supervisor:
  liveness_interval: 15m
  liveness_jitter: 0.1
  idle_threshold: 20m
  stopped_ttl: 48h
  stopped_sweep_interval: 24h
  max_session_hours:
    low: 8
    mid: 8
    high: 6

billing:
  rate_table_path: configs/rates.yaml
  daily_limit_usd: 50
  monthly_limit_usd: 500
  monthly_soft_cap_usd: 400
  monthly_hard_cap_usd: 500

security:
  rate_limit: 100
  allowed_origins:
    - "*"
  agent_token_secret: change-me-in-production
  agent_token_expiration: 24h
  client_cert_path: ""
`

	if err := os.WriteFile("config.yaml", []byte(defaultConfig), 0644); err != nil {
		return err
	}

	fmt.Println("Created config.yaml")
	return nil
}
