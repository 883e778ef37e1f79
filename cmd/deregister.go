package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deregisterCmd = &cobra.Command{
	Use:   "deregister <id>",
	Args:  cobra.ExactArgs(1),
	Short: "Remove a capability server from the registry",
	RunE:  runDeregisterServer,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "3",
	},
}

func init() {
	rootCmd.AddCommand(deregisterCmd)
}

func runDeregisterServer(cmd *cobra.Command, args []string) error {
	if err := apiClient.DeregisterServer(args[0]); err != nil {
		return fmt.Errorf("failed to deregister server '%s': %w", args[0], err)
	}
	cmd.Printf("Server '%s' deregistered successfully\n", args[0])
	return nil
}
