package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/playmesh/playmesh/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authentication tokens",
	Long:  `Generate and manage authentication tokens for session agents`,
}

var generateAgentTokenCmd = &cobra.Command{
	Use:   "agent [host-id]",
	Short: "Generate an agent authentication token",
	Long: `Generate a JWT token for agent authentication.

The token is signed with the agent_token_secret from the configuration file
and scoped to the given host ID. Agents present it on every callback and
use it to fetch their session manifest.

Examples:
  # Generate a token for a host
  playmesh token agent host:f3a91c

  # Generate a token with custom expiration (in hours)
  playmesh token agent host:f3a91c --expiration 48

  # Use a custom secret (overrides config)
  playmesh token agent host:f3a91c --secret "my-custom-secret"`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateAgentToken,
}

var (
	tokenExpiration int64
	tokenSecret     string
)

func init() {
	generateAgentTokenCmd.Flags().Int64Var(&tokenExpiration, "expiration", 24, "Token expiration in hours")
	generateAgentTokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "Agent token secret (default: from config file)")

	tokenCmd.AddCommand(generateAgentTokenCmd)
}

func runGenerateAgentToken(cmd *cobra.Command, args []string) error {
	hostID := args[0]

	secret := tokenSecret
	if secret == "" && cfg != nil {
		secret = cfg.Security.AgentTokenSecret
	}
	if secret == "" {
		return fmt.Errorf(`agent_token_secret not found in config file and --secret not provided

Please either:
  1. Add to your config.yaml:
     security:
       agent_token_secret: your-secret-here

  2. Or use the --secret flag:
     playmesh token agent %s --secret "your-secret-here"`, hostID)
	}

	expiration := time.Duration(tokenExpiration) * time.Hour

	token, err := auth.GenerateAgentToken(secret, hostID, expiration)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("Agent Token Generated Successfully\n")
	fmt.Printf("==================================\n\n")
	fmt.Printf("Host ID:    %s\n", hostID)
	fmt.Printf("Expiration: %s (%d hours)\n", expiration, tokenExpiration)
	fmt.Printf("\nToken:\n%s\n\n", token)
	fmt.Printf("The agent fetches its manifest with:\n")
	fmt.Printf("  GET /hosts/%s/manifest\n\n", token)
	fmt.Printf("Keep this token secure. It grants agent access for this host.\n")

	return nil
}
