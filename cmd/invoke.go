package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/pkg/types"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <server-id> <tool>",
	Args:  cobra.ExactArgs(2),
	Short: "Invoke a tool on a capability server",
	Long: "Invokes a tool on a registered capability server and prints the result.\n\n" +
		"Parameters are supplied as a JSON object:\n" +
		"    toolgate invoke weather get_weather --params '{\"ville\": \"Paris\"}'\n\n" +
		"The command exits non-zero when the invocation fails validation, transport\n" +
		"or the server's response protocol.",
	RunE: runInvokeTool,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "7",
	},
}

var (
	invokeCmdParams     string
	invokeCmdBearer     string
	invokeCmdTimeoutSec int
)

func init() {
	invokeCmd.Flags().StringVar(&invokeCmdParams, "params", "{}", "Tool parameters as a JSON object")
	invokeCmd.Flags().StringVar(
		&invokeCmdBearer,
		"bearer",
		"",
		"Bearer credential forwarded to the capability server",
	)
	invokeCmd.Flags().IntVar(
		&invokeCmdTimeoutSec,
		"timeout",
		0,
		"Invocation timeout in seconds (default: server-side setting)",
	)

	rootCmd.AddCommand(invokeCmd)
}

func runInvokeTool(cmd *cobra.Command, args []string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(invokeCmdParams), &params); err != nil {
		return fmt.Errorf("--params must be a valid JSON object: %w", err)
	}

	req := &types.InvocationRequest{
		ServerID:    args[0],
		Tool:        args[1],
		Params:      params,
		BearerToken: invokeCmdBearer,
		TimeoutSec:  invokeCmdTimeoutSec,
	}

	result, err := apiClient.InvokeTool(req)
	if err != nil {
		return fmt.Errorf("failed to invoke tool '%s' on server '%s': %w", args[1], args[0], err)
	}

	// surface warnings even on success
	for _, reason := range result.Reasons {
		if reason.Severity == types.SeverityWarning {
			cmd.Printf("warning: %s\n", reason.Message)
		}
	}

	if result.IsFailure() {
		return fmt.Errorf("%s", result.Summary())
	}

	out, err := json.MarshalIndent(result.Value, "", "  ")
	if err != nil {
		cmd.Println(result.Value)
		return nil
	}
	cmd.Println(string(out))
	return nil
}
