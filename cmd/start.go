package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/toolgate/toolgate/internal/api"
	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/schema"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/validate"
)

const (
	BindPortEnvVar  = "PORT"
	BindPortDefault = "8080"

	RegistryFileEnvVar  = "TOOLGATE_REGISTRY_FILE"
	RegistryFileDefault = "toolgate.servers.json"

	TelemetryEnabledEnvVar = "OTEL_ENABLED"

	StrictValidationEnvVar = "TOOLGATE_STRICT_VALIDATION"

	// SchemaTTLSecEnvVar configures how long cached tool schemas stay fresh.
	SchemaTTLSecEnvVar = "TOOLGATE_SCHEMA_TTL_SEC"

	// InvokeTimeoutSecEnvVar configures the per-invocation timeout.
	InvokeTimeoutSecEnvVar = "TOOLGATE_INVOKE_TIMEOUT_SEC"
)

var (
	startServerCmdBindPort     string
	startServerCmdRegistryFile string
	startServerCmdStrict       bool
)

var startServerCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the toolgate registry server",
	Long: "Starts the toolgate HTTP registry and tool dispatcher.\n\n" +
		"The registry is persisted as a single JSON file (default: " + RegistryFileDefault + " in the\n" +
		"current directory). Supply a custom path via the " + RegistryFileEnvVar + " environment\n" +
		"variable or the --registry-file flag.\n\n" +
		"By default, parameter type mismatches in tool invocations are reported as warnings\n" +
		"and the call still goes through. Set " + StrictValidationEnvVar + "=true or pass --strict\n" +
		"to reject such calls instead.\n\n" +
		"Cached tool schemas stay fresh for 5 minutes; override with " + SchemaTTLSecEnvVar + " (seconds).\n" +
		"The per-invocation timeout defaults to 30 seconds; override with " + InvokeTimeoutSecEnvVar + ".\n",
	RunE: runStartServer,
	Annotations: map[string]string{
		"group": string(subCommandGroupBasic),
		"order": "1",
	},
}

func init() {
	startServerCmd.Flags().StringVar(
		&startServerCmdBindPort,
		"port",
		"",
		fmt.Sprintf("port to bind the HTTP server to (overrides env var %s)", BindPortEnvVar),
	)
	startServerCmd.Flags().StringVar(
		&startServerCmdRegistryFile,
		"registry-file",
		"",
		fmt.Sprintf("path of the registry JSON file (overrides env var %s)", RegistryFileEnvVar),
	)
	startServerCmd.Flags().BoolVar(
		&startServerCmdStrict,
		"strict",
		false,
		fmt.Sprintf(
			"Reject invocations whose parameter types don't match the tool schema."+
				" Alternatively, set the %s environment variable ('true' | 'false')",
			StrictValidationEnvVar,
		),
	)

	rootCmd.AddCommand(startServerCmd)
}

// isTelemetryEnabled returns true if telemetry should be enabled.
// If an env var is specified, it takes precedence over the default (disabled).
func isTelemetryEnabled() (bool, error) {
	envTelemetryEnabled := strings.ToLower(os.Getenv(TelemetryEnabledEnvVar))
	switch envTelemetryEnabled {
	case "":
		return false, nil
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf(
			"invalid value for %s environment variable: '%s', valid values are 'true' or 'false'",
			TelemetryEnabledEnvVar, envTelemetryEnabled,
		)
	}
}

// isStrictValidationEnabled returns true if invocation validation should be
// strict. The command line flag takes precedence over the environment variable.
func isStrictValidationEnabled() (bool, error) {
	if startServerCmdStrict {
		return true, nil
	}
	envStrict := strings.ToLower(os.Getenv(StrictValidationEnvVar))
	switch envStrict {
	case "", "false", "0":
		return false, nil
	case "true", "1":
		return true, nil
	default:
		return false, fmt.Errorf(
			"invalid value for %s environment variable: '%s', valid values are 'true' or 'false'",
			StrictValidationEnvVar, envStrict,
		)
	}
}

// getBindPort returns the TCP port to bind the toolgate server to
// precedence: command line flag > environment variable > default
func getBindPort() string {
	port := startServerCmdBindPort
	if port == "" {
		port = os.Getenv(BindPortEnvVar)
	}
	if port == "" {
		port = BindPortDefault
	}
	return port
}

// getRegistryFilePath returns the path of the registry JSON file
// precedence: command line flag > environment variable > default
func getRegistryFilePath() string {
	path := startServerCmdRegistryFile
	if path == "" {
		path = os.Getenv(RegistryFileEnvVar)
	}
	if path == "" {
		path = RegistryFileDefault
	}
	return path
}

// getDurationFromEnv reads a positive integer number of seconds from the
// given environment variable. Zero means the variable was not set.
func getDurationFromEnv(envVar string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return 0, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 1 {
		return 0, fmt.Errorf("invalid value for %s: '%s', must be a positive integer", envVar, raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

func runStartServer(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize metrics if enabled
	telemetryEnabled, err := isTelemetryEnabled()
	if err != nil {
		return err
	}
	otelConfig := &telemetry.Config{
		ServiceName: "toolgate",
		Enabled:     telemetryEnabled,
	}
	otelProviders, err := telemetry.Init(cmd.Context(), otelConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Opentelemetry providers: %v", err)
	}
	defer func() {
		if err := otelProviders.Shutdown(cmd.Context()); err != nil {
			cmd.Printf("Warning: failed to shutdown opentelemetry providers: %v\n", err)
		}
	}()

	// By default, a no-op metrics implementation is used, assuming metrics are disabled.
	// If metrics are enabled, then create the real metrics implementation.
	// This way, the rest of the code can simply use the CustomMetrics interface without
	// worrying about whether metrics are enabled or not.
	metrics := telemetry.NewNoopCustomMetrics()
	if otelProviders.IsEnabled() {
		metrics, err = telemetry.NewOtelCustomMetrics(otelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create metrics: %v", err)
		}
	}

	registryFile := getRegistryFilePath()
	store, err := registry.NewStore(afero.NewOsFs(), registryFile, logger)
	if err != nil {
		return fmt.Errorf("failed to open registry file %s: %v", registryFile, err)
	}
	logger.Info("loaded server registry",
		zap.String("file", registryFile), zap.Int("servers", len(store.List())))

	fetcher := schema.NewFetcher(&schema.FetcherConfig{Logger: logger})

	schemaTTL, err := getDurationFromEnv(SchemaTTLSecEnvVar)
	if err != nil {
		return err
	}
	cat, err := catalog.NewCatalog(&catalog.Config{
		Registry: store,
		Fetcher:  fetcher,
		Logger:   logger,
		Metrics:  metrics,
		TTL:      schemaTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create tool catalog: %v", err)
	}
	// registration changes must discard any schema cached for the server
	store.SetChangeCallback(cat.HandleServerChange)

	strict, err := isStrictValidationEnabled()
	if err != nil {
		return err
	}
	invokeTimeout, err := getDurationFromEnv(InvokeTimeoutSecEnvVar)
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.NewDispatcher(&dispatch.Config{
		Registry:   store,
		Catalog:    cat,
		Validator:  &validate.Validator{Strict: strict},
		Handshaker: fetcher,
		Logger:     logger,
		Metrics:    metrics,
		Timeout:    invokeTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %v", err)
	}

	bindPort := getBindPort()

	// create the API server
	opts := &api.ServerOptions{
		Port:          bindPort,
		Registry:      store,
		Catalog:       cat,
		Fetcher:       fetcher,
		Dispatcher:    dispatcher,
		Logger:        logger,
		OtelProviders: otelProviders,
		Metrics:       metrics,
	}
	s, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %v", err)
	}

	cmd.Printf("toolgate HTTP server listening on :%s\n\n", bindPort)
	if err := s.Start(); err != nil {
		return fmt.Errorf("failed to run the server: %v", err)
	}

	return nil
}
