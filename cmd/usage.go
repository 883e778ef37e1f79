package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var usageCmd = &cobra.Command{
	Use:   "usage <server-id> <tool>",
	Short: "Get usage information for a tool",
	Args:  cobra.ExactArgs(2),
	RunE:  runGetToolUsage,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "6",
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}

func runGetToolUsage(cmd *cobra.Command, args []string) error {
	serverID, toolName := args[0], args[1]

	list, err := apiClient.ListTools(serverID, false)
	if err != nil {
		return fmt.Errorf("failed to list tools of server '%s': %w", serverID, err)
	}

	for _, t := range list.Tools {
		if t.Name != toolName {
			continue
		}

		cmd.Println(t.Name)
		if t.Description != "" {
			cmd.Println(t.Description)
		}

		if len(t.Parameters) == 0 {
			cmd.Println("This tool does not require any input parameters.")
			return nil
		}

		cmd.Println()
		cmd.Println("Input Parameters:")
		for _, p := range t.Parameters {
			requiredOrOptional := "optional"
			if p.Required {
				requiredOrOptional = "required"
			}

			boundary := strings.Repeat("=", len(p.Name)+len(requiredOrOptional)+20)

			cmd.Println(boundary)
			cmd.Printf("%s (%s)\n", p.Name, requiredOrOptional)
			if p.Type != "" {
				cmd.Println("type: " + p.Type)
			}
			if p.Description != "" {
				cmd.Println(p.Description)
			}
			if p.Default != nil {
				cmd.Printf("default: %v\n", p.Default)
			}
			cmd.Println(boundary)

			cmd.Println()
		}
		return nil
	}

	return fmt.Errorf("server '%s' does not advertise a tool named '%s'", serverID, toolName)
}
