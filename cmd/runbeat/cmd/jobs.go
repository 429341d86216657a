package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/runbeat/runbeat/pkg/models"
)

var (
	submitWorkDir  string
	submitTimeout  int
	submitEnv      []string
	submitNoStdout bool
	submitNoStderr bool

	followStatus bool
)

// jobsCmd represents the jobs command
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage jobs on a running engine",
	Long:  `Commands for submitting, inspecting and canceling jobs over the engine API.`,
}

var jobsSubmitCmd = &cobra.Command{
	Use:   "submit <executable> [args...]",
	Short: "Submit a new job",
	Long:  `Submit a job to the engine. The command returns immediately with the job id.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runJobsSubmit,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Get job status",
	Long:  `Show the status of a job. Without an id, lists all jobs.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJobsStatus,
}

var jobsResultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Get the result of a completed job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsResult,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cancellation of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsSubmitCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsResultCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsSubmitCmd.Flags().IntVar(&submitTimeout, "timeout", 60, "per-attempt timeout in seconds")
	jobsSubmitCmd.Flags().StringVar(&submitWorkDir, "workdir", "", "working directory for the process")
	jobsSubmitCmd.Flags().StringArrayVar(&submitEnv, "env", nil, "environment override KEY=VALUE (repeatable)")
	jobsSubmitCmd.Flags().BoolVar(&submitNoStdout, "no-stdout", false, "do not capture stdout")
	jobsSubmitCmd.Flags().BoolVar(&submitNoStderr, "no-stderr", false, "do not capture stderr")

	jobsStatusCmd.Flags().BoolVar(&followStatus, "follow", false, "poll status every 2 seconds until the job finishes")
}

func runJobsSubmit(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	env := make(map[string]string, len(submitEnv))
	for _, kv := range submitEnv {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --env value %q, want KEY=VALUE", kv)
		}
		env[parts[0]] = parts[1]
	}

	params := models.JobParameters{
		ExecutablePath: args[0],
		Args:           args[1:],
		WorkingDir:     submitWorkDir,
		TimeoutSec:     submitTimeout,
		Env:            env,
		CaptureStdout:  !submitNoStdout,
		CaptureStderr:  !submitNoStderr,
	}

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := apiRequest("POST", "/jobs", bytes.NewReader(body), http.StatusAccepted)
	if err != nil {
		return err
	}

	var result map[string]string
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		printJSON(result)
	} else {
		fmt.Printf("Job submitted: %s\n", result["id"])
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if len(args) == 0 {
		return listAllJobs()
	}
	jobID := args[0]

	for {
		job, err := fetchJob(jobID)
		if err != nil {
			return err
		}

		if followStatus && !IsJSONOutput() {
			fmt.Print("\033[H\033[2J")
		}
		displayJob(job)

		if !followStatus || models.IsTerminalStatus(job.Status) {
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func runJobsResult(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	body, err := apiRequest("GET", "/jobs/"+args[0]+"/result", nil, http.StatusOK)
	if err != nil {
		return err
	}

	var result models.ExecutionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	attempts := 0
	if attemptsBody, err := apiRequest("GET", "/jobs/"+args[0]+"/attempts", nil, http.StatusOK); err == nil {
		var out struct {
			Attempts int `json:"attempts"`
		}
		if json.Unmarshal(attemptsBody, &out) == nil {
			attempts = out.Attempts
		}
	}

	printResult(&result, attempts)
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if _, err := apiRequest("POST", "/jobs/"+args[0]+"/cancel", nil, http.StatusAccepted); err != nil {
		return err
	}
	fmt.Printf("Cancellation requested for job %s\n", args[0])
	return nil
}

func listAllJobs() error {
	body, err := apiRequest("GET", "/jobs", nil, http.StatusOK)
	if err != nil {
		return err
	}

	var result struct {
		Jobs  []models.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		printJSON(result)
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Executable", "Status", "Attempts", "Error", "Created")

	for _, job := range result.Jobs {
		errDisplay := "-"
		if job.LastError != "" {
			errDisplay = string(job.LastErrorKind)
		}
		table.Append(
			job.ID,
			job.Params.ExecutablePath,
			string(job.Status),
			fmt.Sprintf("%d", job.Attempts),
			errDisplay,
			job.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
	fmt.Printf("\nTotal jobs: %d\n", result.Count)
	return nil
}

func fetchJob(id string) (*models.Job, error) {
	body, err := apiRequest("GET", "/jobs/"+id, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var job models.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &job, nil
}

func displayJob(job *models.Job) {
	if IsJSONOutput() {
		printJSON(job)
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")

	table.Append("ID", job.ID)
	table.Append("Executable", job.Params.ExecutablePath)
	if len(job.Params.Args) > 0 {
		table.Append("Args", strings.Join(job.Params.Args, " "))
	}
	table.Append("Status", string(job.Status))
	table.Append("Attempts", fmt.Sprintf("%d", job.Attempts))
	if job.CancelRequested {
		table.Append("Cancel Requested", "yes")
	}
	if job.LastError != "" {
		table.Append("Last Error", job.LastError)
		table.Append("Error Kind", string(job.LastErrorKind))
	}
	if job.Result != nil {
		table.Append("Exit Code", fmt.Sprintf("%d", job.Result.ExitCode))
	}
	table.Append("Created At", job.CreatedAt.Format(time.RFC3339))
	if job.StartedAt != nil {
		table.Append("Started At", job.StartedAt.Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		table.Append("Completed At", job.CompletedAt.Format(time.RFC3339))
	}

	table.Render()
}

// apiRequest performs one engine API call and checks the expected status
func apiRequest(method, path string, body io.Reader, wantStatus int) ([]byte, error) {
	req, err := http.NewRequest(method, GetServerURL()+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to engine API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func printJSON(v interface{}) {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(output))
}
