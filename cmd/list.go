package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered capability servers",
	RunE:  runListServers,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "4",
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runListServers(cmd *cobra.Command, args []string) error {
	servers, err := apiClient.ListServers()
	if err != nil {
		return fmt.Errorf("failed to list servers: %w", err)
	}
	if len(servers) == 0 {
		cmd.Println("No capability servers are registered.")
		return nil
	}

	for _, s := range servers {
		cmd.Printf("%s  %s\n", s.ID, s.URL)
		if s.Description != "" {
			cmd.Println("    " + s.Description)
		}
		if len(s.Capabilities) > 0 {
			cmd.Println("    capabilities: " + strings.Join(s.Capabilities, ", "))
		}
	}
	return nil
}
