package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/algosync/internal/core/domain"
	"github.com/custodia-labs/algosync/internal/core/ports/driving"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect --class <class> --id <id>",
	Short: "Compare a record's local document with the indexed copies",
	Long: `Shows the record's indexing state, the document it currently extracts
to, and for each index it routes to the stored document, whether the two
match and the index settings.`,
	Example: `  algosync inspect --class Article --id 2
  algosync inspect Article 2`,
	Args: recordRefArgs,
	RunE: runInspect,
}

func init() {
	addRecordRefFlags(inspectCmd)
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	class, id, err := recordRef(cmd, args)
	if err != nil {
		return err
	}
	a, err := requireApp()
	if err != nil {
		return err
	}

	in, err := a.Indexer.Inspect(commandContext(cmd), class, id)
	if err != nil {
		return fmt.Errorf("inspect failed: %w", err)
	}
	return printInspection(cmd, in)
}

func printInspection(cmd *cobra.Command, in *driving.Inspection) error {
	rec := in.Record
	cmd.Printf("Record:        %s %d %q\n", rec.ClassName, rec.ID, rec.Title)
	if rec.Link != "" {
		cmd.Printf("Link:          %s\n", rec.Link)
	}

	state := rec.State
	cmd.Printf("Search UUID:   %s\n", orNone(state.SearchUUID))
	if state.LastIndexedAt != nil {
		cmd.Printf("Last indexed:  %s\n", state.LastIndexedAt.Format(time.RFC3339))
	} else {
		cmd.Println("Last indexed:  never")
	}
	if state.IndexedClassName != "" && state.IndexedClassName != rec.ClassName {
		cmd.Printf("Indexed as:    %s\n", state.IndexedClassName)
	}
	if state.LastError != "" {
		cmd.Printf("Last error:    %s\n", state.LastError)
	}

	cmd.Println()
	cmd.Println("Local document:")
	if err := printJSON(cmd, in.Local); err != nil {
		return err
	}
	for _, d := range in.Dropped {
		cmd.Printf("  dropped %s\n", d.Error())
	}

	for _, index := range in.Indexes {
		cmd.Println()
		remote, ok := in.Remote[index]
		switch {
		case ok && in.Local != nil && domain.SameContent(in.Local, remote, domain.KeyIndexedTimestamp):
			cmd.Printf("Index %s: in sync\n", index)
		case ok:
			cmd.Printf("Index %s: differs\n", index)
			if err := printJSON(cmd, remote); err != nil {
				return err
			}
		case in.RemoteErrors[index] != "":
			cmd.Printf("Index %s: %s\n", index, in.RemoteErrors[index])
		default:
			cmd.Printf("Index %s: not indexed\n", index)
		}
		if settings := in.Settings[index]; len(settings) > 0 {
			cmd.Println("Settings:")
			if err := printJSON(cmd, settings); err != nil {
				return err
			}
		}
	}
	if len(in.Indexes) == 0 {
		cmd.Println()
		cmd.Println("The record routes to no index.")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
