// Command gentoken mints an agent token outside the full CLI, for local
// development against a server started with the default secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/playmesh/playmesh/internal/auth"
)

func main() {
	secret := flag.String("secret", "change-me-in-production", "agent token secret")
	hostID := flag.String("host", "", "host ID the token is scoped to")
	hours := flag.Int("hours", 24, "token lifetime in hours")
	flag.Parse()

	if *hostID == "" {
		fmt.Fprintln(os.Stderr, "usage: gentoken -host <host-id> [-secret s] [-hours n]")
		os.Exit(2)
	}

	token, err := auth.GenerateAgentToken(*secret, *hostID, time.Duration(*hours)*time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
