package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Push index settings to Algolia",
	Long: `Pushes the settings of every configured index, replicas included, to
the remote service. Run it after changing index settings or adding indexes.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, _ []string) error {
	a, err := requireApp()
	if err != nil {
		return err
	}

	if err := a.Settings.SyncSettings(commandContext(cmd)); err != nil {
		return fmt.Errorf("configure failed: %w", err)
	}

	mapping := a.Config.Indexes
	count := 0
	for _, e := range mapping.Entries() {
		cmd.Printf("  %s\n", e.Name)
		count++
		for _, r := range e.Replicas {
			if _, configured := mapping.Entry(r); configured {
				continue
			}
			cmd.Printf("  %s (replica of %s)\n", r, e.Name)
			count++
		}
	}
	cmd.Printf("Settings synchronised for %d indexes.\n", count)
	return nil
}
