package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

var (
	jobsLimit    int
	jobsVerbose  bool
	jobsMaxSteps int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage queued indexing jobs",
	Long: `Lists and runs the persisted indexing jobs created in queued mode or by
reindex --queued. The worker runs them automatically.`,
	RunE: runJobsList,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pending jobs until the queue is empty",
	Args:  cobra.NoArgs,
	RunE:  runJobsRun,
}

func init() {
	jobsCmd.PersistentFlags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum number of jobs to list")
	jobsListCmd.Flags().BoolVar(&jobsVerbose, "messages", false, "show job messages")
	jobsRunCmd.Flags().IntVar(&jobsMaxSteps, "max-steps", 0, "stop after this many steps (0 for no limit)")
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	jobs, err := a.Jobs.List(commandContext(cmd), jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		cmd.Println("No jobs.")
		return nil
	}
	for i := range jobs {
		printJob(cmd, &jobs[i], jobsVerbose)
	}
	return nil
}

func printJob(cmd *cobra.Command, job *domain.Job, messages bool) {
	cmd.Printf("%s  %-11s %-8s steps=%d  updated %s\n",
		job.ID, job.Kind, job.Status, job.Steps, job.UpdatedAt.Format(time.DateTime))
	if !messages {
		return
	}
	for _, m := range job.Messages {
		cmd.Printf("    %s\n", m)
	}
}

func runJobsRun(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}
	steps, err := a.Jobs.Drain(commandContext(cmd), jobsMaxSteps)
	cmd.Printf("Ran %d job steps.\n", steps)
	if err != nil {
		return fmt.Errorf("run jobs: %w", err)
	}
	return nil
}
