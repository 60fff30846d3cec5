package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/vidcoach/internal/store"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived analysis runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		jsonOutput bool
		status     string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			st := mustOpenArchive()
			defer st.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			runs, err := st.ListRuns(ctx, store.ListRunsOpts{Status: status, Limit: limit})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			printRunSummaries(runs, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows (0 = all)")
	return cmd
}

func runsShowCmd() *cobra.Command {
	var (
		format    string
		withSpans bool
	)
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one run with its transcript",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			id, err := uuid.Parse(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: invalid run id %q\n", args[0])
				os.Exit(1)
			}

			st := mustOpenArchive()
			defer st.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			run, err := st.GetRun(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Run %s not found.\n", id)
				os.Exit(1)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			view := runView{RunData: run}
			if withSpans {
				spans, err := st.ListSpans(ctx, id)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error loading spans: %v\n", err)
					os.Exit(1)
				}
				view.Spans = spans
			}

			out, err := formatRun(view, format)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Print(out)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml or json")
	cmd.Flags().BoolVar(&withSpans, "spans", false, "include recorded spans")
	return cmd
}

type runView struct {
	*store.RunData
	Spans []store.SpanData `json:"spans,omitempty"`
}

// formatRun renders a run as JSON or YAML. YAML output goes through the JSON
// encoding first so both formats share the json field names.
func formatRun(view runView, format string) (string, error) {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", err
	}
	switch strings.ToLower(format) {
	case "json":
		return string(data) + "\n", nil
	case "yaml", "yml":
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return "", err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}

func printRunSummaries(runs []store.RunSummary, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSTATUS\tSTARTED\tTRIPS\tTOKENS\tCOST\tGOAL\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\n",
			r.ID,
			r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.RoundTrips,
			r.TotalTokens,
			r.EstimatedCost,
			padCell(r.Goal, 48),
		)
	}
	tw.Flush()
}

func mustOpenArchive() store.Store {
	cfg := mustLoadConfig()
	if !cfg.ArchiveEnabled() {
		fmt.Fprintln(os.Stderr, "Run archive is disabled (store.driver is \"none\").")
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening run archive: %v\n", err)
		os.Exit(1)
	}
	return st
}
