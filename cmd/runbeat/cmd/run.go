package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/runbeat/runbeat/pkg/cancel"
	"github.com/runbeat/runbeat/pkg/config"
	"github.com/runbeat/runbeat/pkg/launcher"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/models"
	"github.com/runbeat/runbeat/pkg/retry"
)

var (
	runTimeout    int
	runWorkDir    string
	runEnv        []string
	runNoStdout   bool
	runNoStderr   bool
	runLogLevel   string
	runMaxRetries int
)

// runCmd executes a single job in the foreground without a server
var runCmd = &cobra.Command{
	Use:   "run <executable> [args...]",
	Short: "Run one job in the foreground",
	Long: `Execute a single job without the server: launch the executable, capture
its output, retry transient failures and print the result. Ctrl+C requests
cancellation; the process tree is killed and the job ends as canceled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runTimeout, "timeout", 60, "per-attempt timeout in seconds")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "working directory for the process")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "environment override KEY=VALUE (repeatable)")
	runCmd.Flags().BoolVar(&runNoStdout, "no-stdout", false, "do not capture stdout")
	runCmd.Flags().BoolVar(&runNoStderr, "no-stderr", false, "do not capture stderr")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	runCmd.Flags().IntVar(&runMaxRetries, "max-attempts", 0, "max launch attempts (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.NewLogger(logging.ParseLevel(runLogLevel), cfg.Logging.JSON)
	log.SetOutput(os.Stderr)

	env := make(map[string]string, len(runEnv))
	for _, kv := range runEnv {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --env value %q, want KEY=VALUE", kv)
		}
		env[parts[0]] = parts[1]
	}

	params := models.JobParameters{
		ExecutablePath: args[0],
		Args:           args[1:],
		WorkingDir:     runWorkDir,
		TimeoutSec:     runTimeout,
		Env:            env,
		CaptureStdout:  !runNoStdout,
		CaptureStderr:  !runNoStderr,
	}
	if err := params.Validate(); err != nil {
		return err
	}

	policy := cfg.RetryPolicy()
	if runMaxRetries > 0 {
		policy.MaxAttempts = runMaxRetries
	}

	// Ctrl+C requests cancellation; a second signal kills us outright
	ctrl := cancel.NewController()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("cancellation requested")
		ctrl.Request()
		signal.Stop(sigChan)
	}()

	coordinator := retry.New(launcher.New(log), policy, log)

	var attempts int
	result, err := coordinator.Execute(context.Background(), params, ctrl,
		func(attempt int, result *models.ExecutionResult, err error, elapsed time.Duration) { attempts = attempt })
	if err != nil {
		return fmt.Errorf("job failed after %d attempt(s): %w", attempts, err)
	}

	printResult(result, attempts)

	if result.ExitCode != 0 {
		os.Exit(result.ExitCode)
	}
	return nil
}

func printResult(result *models.ExecutionResult, attempts int) {
	if IsJSONOutput() {
		printJSON(map[string]interface{}{
			"attempts": attempts,
			"result":   result,
		})
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Exit Code", fmt.Sprintf("%d", result.ExitCode))
	table.Append("Attempts", fmt.Sprintf("%d", attempts))
	table.Append("Duration", result.Duration.Round(time.Millisecond).String())
	table.Append("Started At", result.StartedAt.Format(time.RFC3339))
	table.Append("Ended At", result.EndedAt.Format(time.RFC3339))
	table.Render()

	if result.Stdout != "" {
		fmt.Printf("\n=== stdout ===\n%s\n", result.Stdout)
	}
	if result.Stderr != "" {
		fmt.Printf("\n=== stderr ===\n%s\n", result.Stderr)
	}
}
