package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools <server-id>",
	Args:  cobra.ExactArgs(1),
	Short: "List the tools advertised by a capability server",
	Long: "Lists the tools a registered capability server advertises.\n" +
		"Results come from the registry's schema cache; use --refresh to force a fresh fetch\n" +
		"or --handshake to discover tools via the streaming initialization exchange instead.",
	RunE: runListTools,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "5",
	},
}

var (
	toolsCmdRefresh   bool
	toolsCmdHandshake bool
)

func init() {
	toolsCmd.Flags().BoolVar(&toolsCmdRefresh, "refresh", false, "Bypass the schema cache")
	toolsCmd.Flags().BoolVar(
		&toolsCmdHandshake,
		"handshake",
		false,
		"Discover tools via the streaming initialization exchange",
	)

	rootCmd.AddCommand(toolsCmd)
}

func runListTools(cmd *cobra.Command, args []string) error {
	serverID := args[0]

	var toolNames []string
	if toolsCmdHandshake {
		resp, err := apiClient.Handshake(serverID)
		if err != nil {
			return fmt.Errorf("handshake with server '%s' failed: %w", serverID, err)
		}
		for _, t := range resp.Tools {
			toolNames = append(toolNames, t.Name)
		}
	} else {
		resp, err := apiClient.ListTools(serverID, toolsCmdRefresh)
		if err != nil {
			return fmt.Errorf("failed to list tools of server '%s': %w", serverID, err)
		}
		if resp.Freshness != "" {
			cmd.Printf("schema cache: %s\n\n", resp.Freshness)
		}
		for _, t := range resp.Tools {
			line := t.Name
			if t.Description != "" {
				line += "  " + t.Description
			}
			toolNames = append(toolNames, line)
		}
	}

	if len(toolNames) == 0 {
		cmd.Println("This server does not advertise any tools.")
		return nil
	}
	for _, name := range toolNames {
		cmd.Println(name)
	}
	return nil
}
