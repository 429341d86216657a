package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "runbeat",
	Short: "Job execution engine for external processes",
	Long: `runbeat runs external executables as managed jobs: it captures their
output, enforces timeouts, retries transient failures with exponential
backoff and supports cooperative cancellation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.runbeat/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "engine API URL (default from config or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
}

// initConfig reads environment variables that the client commands honor
func initConfig() {
	viper.AutomaticEnv()
	viper.BindEnv("server_url", "RUNBEAT_SERVER_URL")

	if serverURL == "" {
		serverURL = viper.GetString("server_url")
	}
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
}

// GetServerURL returns the configured engine API URL without trailing slashes
func GetServerURL() string {
	return strings.TrimRight(serverURL, "/")
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
