package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

var (
	reindexOnly   []string
	reindexFilter string
	reindexForce  bool
	reindexClear  bool
	reindexQueued bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Reindex every stale record",
	Long: `Enumerates indexable records per index and class, newest first, and
writes them in batches. Records indexed within the staleness window are
skipped unless --force is given. --clear empties each write index first
and implies --force.

With --queued the run is planned now and executed by the worker.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

var reindexItemCmd = &cobra.Command{
	Use:   "reindex-item --class <class> --id <id>",
	Short: "Reindex a single record",
	Long:  `Loads one record and writes it to every index it routes to, or removes it when it may no longer be indexed.`,
	Example: `  algosync reindex-item --class Page --id 12
  algosync reindex-item Page 12`,
	Args: recordRefArgs,
	RunE: runReindexItem,
}

func init() {
	reindexCmd.Flags().StringSliceVar(&reindexOnly, "only", nil, "restrict to these classes and their subclasses")
	reindexCmd.Flags().StringVar(&reindexFilter, "filter", "", "extra filter candidates must match, e.g. \"Title != 'X'\"")
	reindexCmd.Flags().BoolVar(&reindexForce, "force", false, "reindex records regardless of staleness")
	reindexCmd.Flags().BoolVar(&reindexClear, "clear", false, "clear the write indexes before reindexing")
	reindexCmd.Flags().BoolVar(&reindexQueued, "queued", false, "submit a job instead of running now")
	rootCmd.AddCommand(reindexCmd)
	addRecordRefFlags(reindexItemCmd)
	rootCmd.AddCommand(reindexItemCmd)
}

func reindexOptions() (domain.ReindexOptions, error) {
	opts := domain.ReindexOptions{
		Only:  reindexOnly,
		Force: reindexForce || reindexClear,
		Clear: reindexClear,
	}
	if reindexFilter != "" {
		f, err := domain.ParseFilter(reindexFilter)
		if err != nil {
			return opts, fmt.Errorf("invalid --filter: %w", err)
		}
		opts.Filter = f
	}
	return opts, nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	opts, err := reindexOptions()
	if err != nil {
		return err
	}
	a, err := requireApp()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	if reindexQueued {
		cursor, err := a.Reindexer.Plan(ctx, opts)
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}
		job, err := a.Jobs.Submit(ctx, domain.JobReindexAll, cursor)
		if err != nil {
			return err
		}
		cmd.Printf("Queued job %s: %d candidates in %d groups.\n", job.ID, cursor.Total, len(cursor.Groups))
		return nil
	}

	cmd.Printf("Reindexing %s...\n", joinOrAll(opts.Only))
	p := newProgress(cmd.OutOrStdout())
	report, err := a.Reindexer.Run(ctx, opts, p.step)
	p.finish()
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func printReport(cmd *cobra.Command, r *domain.ReindexReport) {
	cmd.Printf("Candidates: %d\n", r.Candidates)
	cmd.Printf("Indexed:    %d\n", r.Indexed)
	cmd.Printf("Skipped:    %d\n", r.Skipped)
	cmd.Printf("Errored:    %d\n", r.Errored)
	cmd.Printf("Batches:    %d\n", r.Batches)
	for _, e := range r.Errors {
		cmd.Printf("  error: %s\n", e)
	}
}

// progress prints a dot per batch on a terminal and a line per batch
// otherwise.
type progress struct {
	w    io.Writer
	tty  bool
	dots int
}

func newProgress(w io.Writer) *progress {
	p := &progress{w: w}
	if f, ok := w.(*os.File); ok {
		p.tty = term.IsTerminal(int(f.Fd()))
	}
	return p
}

func (p *progress) step(res domain.StepResult) {
	if p.tty {
		fmt.Fprint(p.w, ".")
		p.dots++
		return
	}
	fmt.Fprintf(p.w, "%s/%s: %d indexed, %d skipped, %d errored (%s)\n",
		res.Index, res.Class, res.Report.Indexed, res.Report.Skipped, res.Report.Errored, res.Elapsed.Round(time.Millisecond))
}

func (p *progress) finish() {
	if p.dots > 0 {
		fmt.Fprintln(p.w)
	}
}

func runReindexItem(cmd *cobra.Command, args []string) error {
	class, id, err := recordRef(cmd, args)
	if err != nil {
		return err
	}
	a, err := requireApp()
	if err != nil {
		return err
	}
	if err := a.Indexer.IndexByID(commandContext(cmd), class, id); err != nil {
		return fmt.Errorf("reindex %s %d failed: %w", class, id, err)
	}
	if a.Config.Settings.Indexer.UseQueuedIndexing {
		cmd.Printf("Queued %s %d for indexing.\n", class, id)
		return nil
	}
	cmd.Printf("Reindexed %s %d.\n", class, id)
	return nil
}

// joinOrAll renders a class list for messages.
func joinOrAll(classes []string) string {
	if len(classes) == 0 {
		return "all classes"
	}
	return strings.Join(classes, ", ")
}
