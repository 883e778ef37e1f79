package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/toolgate/toolgate/pkg/types"
)

var registerCmd = &cobra.Command{
	Use:   "register [id]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Register a capability server in the registry",
	Long: "Register a capability server so its tools can be listed and invoked through toolgate.\n\n" +
		"Supply the server details via flags:\n" +
		"    toolgate register weather --url http://weather-service:8000\n" +
		"or via a JSON/YAML configuration file:\n" +
		"    toolgate register -c weather.yaml\n\n" +
		"Use --validate to probe the server's schema before registering. When validation\n" +
		"succeeds and no capabilities were supplied, the advertised tool names are recorded\n" +
		"as the server's capabilities.\n" +
		"Use --force to replace an existing registration with the same id.",
	RunE: runRegisterServer,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "2",
	},
}

var (
	registerCmdConfigFilePath string
	registerCmdURL            string
	registerCmdDescription    string
	registerCmdEndpoint       string
	registerCmdPayloadStyle   string
	registerCmdCapabilities   string
	registerCmdForce          bool
	registerCmdValidate       bool
)

func init() {
	registerCmd.Flags().StringVarP(
		&registerCmdConfigFilePath,
		"conf",
		"c",
		"",
		"Path to a JSON or YAML configuration file for the server",
	)
	registerCmd.Flags().StringVar(&registerCmdURL, "url", "", "Base URL of the capability server")
	registerCmd.Flags().StringVar(&registerCmdDescription, "description", "", "Description of the server")
	registerCmd.Flags().StringVar(
		&registerCmdEndpoint,
		"endpoint",
		"",
		"Invocation endpoint path of the server (default: /run)",
	)
	registerCmd.Flags().StringVar(
		&registerCmdPayloadStyle,
		"payload-style",
		"",
		"Invocation payload dialect for this server: 'name' (default), 'tool' or 'action'",
	)
	registerCmd.Flags().StringVar(
		&registerCmdCapabilities,
		"capabilities",
		"",
		"Comma-separated list of capability tags to record for the server",
	)
	registerCmd.Flags().BoolVar(&registerCmdForce, "force", false, "Replace an existing registration with the same id")
	registerCmd.Flags().BoolVar(
		&registerCmdValidate,
		"validate",
		false,
		"Probe the server's schema before registering",
	)

	rootCmd.AddCommand(registerCmd)
}

// readRegisterConfig loads a server registration from a JSON or YAML file.
func readRegisterConfig(filePath string) (*types.RegisterServerInput, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	var input types.RegisterServerInput
	jsonErr := json.Unmarshal(data, &input)
	if jsonErr != nil {
		if yamlErr := yaml.Unmarshal(data, &input); yamlErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", errors.Join(jsonErr, yamlErr))
		}
	}
	return &input, nil
}

func runRegisterServer(cmd *cobra.Command, args []string) error {
	var input *types.RegisterServerInput

	if registerCmdConfigFilePath != "" {
		conf, err := readRegisterConfig(registerCmdConfigFilePath)
		if err != nil {
			return err
		}
		input = conf
	} else {
		input = &types.RegisterServerInput{}
	}

	// flags and the positional id override the config file
	if len(args) > 0 {
		input.ID = args[0]
	}
	if registerCmdURL != "" {
		input.URL = registerCmdURL
	}
	if registerCmdDescription != "" {
		input.Description = registerCmdDescription
	}
	if registerCmdEndpoint != "" {
		input.Endpoint = registerCmdEndpoint
	}
	if registerCmdPayloadStyle != "" {
		input.PayloadStyle = registerCmdPayloadStyle
	}
	if registerCmdCapabilities != "" {
		for _, c := range strings.Split(registerCmdCapabilities, ",") {
			if trimmed := strings.TrimSpace(c); trimmed != "" {
				input.Capabilities = append(input.Capabilities, trimmed)
			}
		}
	}
	input.Force = registerCmdForce

	if input.ID == "" {
		return fmt.Errorf("a server id is required, either as an argument or in the config file")
	}
	if input.URL == "" {
		return fmt.Errorf("a server URL is required, either via --url or in the config file")
	}

	server, err := apiClient.RegisterServer(input, registerCmdValidate)
	if err != nil {
		return fmt.Errorf("failed to register server '%s': %w", input.ID, err)
	}

	cmd.Printf("Server '%s' registered successfully!\n", server.ID)
	if len(server.Capabilities) > 0 {
		cmd.Println("Capabilities: " + strings.Join(server.Capabilities, ", "))
	}
	return nil
}
