// Package cmd contains the toolgate command line interface.
package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/client"
	"github.com/toolgate/toolgate/pkg/version"
)

const (
	RegistryURLEnvVar = "TOOLGATE_REGISTRY_URL"
	BearerTokenEnvVar = "TOOLGATE_BEARER_TOKEN"

	DefaultRegistryURL = "http://127.0.0.1:8080"
)

// subCommandGroup is used to group subcommands in the help text.
type subCommandGroup string

const (
	subCommandGroupBasic    subCommandGroup = "basic"
	subCommandGroupAdvanced subCommandGroup = "advanced"
)

// apiClient talks to the toolgate registry server on behalf of all
// client-side subcommands.
var apiClient *client.Client

var rootCmdRegistryURL string

var rootCmd = &cobra.Command{
	Use:     "toolgate",
	Short:   "Registry and dispatcher for tool capability servers",
	Version: version.GetVersion(),
	Long: "toolgate maintains a registry of capability servers, caches the tool\n" +
		"schemas they advertise and dispatches validated tool invocations to them.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		registryURL := rootCmdRegistryURL
		if registryURL == "" {
			registryURL = os.Getenv(RegistryURLEnvVar)
		}
		if registryURL == "" {
			registryURL = DefaultRegistryURL
		}
		apiClient = client.NewClient(registryURL, os.Getenv(BearerTokenEnvVar), &http.Client{})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&rootCmdRegistryURL,
		"registry",
		"",
		fmt.Sprintf("Base URL of the toolgate registry server (overrides env var %s)", RegistryURLEnvVar),
	)
}

// Execute runs the root command and exits with a non-zero code on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
