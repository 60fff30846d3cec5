package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/vidcoach/internal/agent"
	"github.com/nextlevelbuilder/vidcoach/internal/config"
	"github.com/nextlevelbuilder/vidcoach/internal/store"
	"github.com/nextlevelbuilder/vidcoach/internal/usage"
)

type analyzeOptions struct {
	goal         string
	focus        string
	instruction  string
	observations int
	maxTurns     int
	timeout      time.Duration
	jsonOutput   bool
	events       bool
	noArchive    bool
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [url]",
		Short: "Analyze the technique in a video",
		Long: `Analyze downloads the video, samples frames and returns technique observations.

Examples:
  vidcoach analyze https://www.youtube.com/watch?v=VIDEO_ID
  vidcoach analyze https://youtu.be/VIDEO_ID --focus "backhand footwork" -n 3
  vidcoach analyze --goal "Compare the serve toss in https://youtu.be/VIDEO_ID to textbook form"
  vidcoach analyze https://youtu.be/VIDEO_ID --json > result.json`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			url := ""
			if len(args) == 1 {
				url = args[0]
			}
			if url == "" && strings.TrimSpace(opts.goal) == "" {
				fmt.Fprintln(os.Stderr, "Error: pass a video URL or --goal")
				os.Exit(2)
			}
			os.Exit(runAnalyze(url, opts))
		},
	}

	cmd.Flags().StringVarP(&opts.goal, "goal", "g", "", "free-form goal (replaces the default goal built from the URL)")
	cmd.Flags().StringVarP(&opts.focus, "focus", "f", "", "aspect of technique to focus on")
	cmd.Flags().StringVar(&opts.instruction, "instruction", "", "extra operator instruction appended to the system prompt")
	cmd.Flags().IntVarP(&opts.observations, "observations", "n", 0, "number of observations to ask for (default tools.vision.max_observations)")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 0, "model round-trip ceiling (default agent.max_turns)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Minute, "overall run timeout")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.events, "events", false, "stream progress events as JSON lines on stderr")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "do not save this run to the archive")
	return cmd
}

func runAnalyze(url string, opts analyzeOptions) int {
	cfg := mustLoadConfig()
	if opts.maxTurns > 0 {
		cfg.Agent.MaxTurns = opts.maxTurns
	}
	if opts.observations > 0 {
		cfg.Tools.Vision.MaxObservations = opts.observations
	}
	if opts.instruction != "" {
		cfg.Agent.Instruction = opts.instruction
	}
	if opts.noArchive {
		cfg.Store.Driver = "none"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, opts.timeout)
	defer cancelTimeout()

	provider, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	reg, err := buildRegistry(cfg, provider)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: run archive unavailable: %v\n", err)
		st = nil
	}
	if st != nil {
		defer st.Close()
	}
	var tracingStore store.TracingStore
	if st != nil {
		tracingStore = st
	}
	collector := startCollector(ctx, cfg, tracingStore)
	if collector != nil {
		defer collector.Stop()
	}

	events := newEventBus(opts.events, opts.jsonOutput)

	goal := opts.goal
	if strings.TrimSpace(goal) == "" {
		goal = agent.Goal(url, cfg.Tools.Vision.MaxObservations, opts.focus)
	}

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = agent.BuildSystemPrompt(agent.PromptConfig{
			MaxObservations: cfg.Tools.Vision.MaxObservations,
			Instruction:     cfg.Agent.Instruction,
		})
	}

	loopCfg := agent.LoopConfig{
		ID:              "cli",
		Provider:        provider,
		Model:           cfg.Provider.Model,
		MaxTokens:       cfg.Agent.MaxTokens,
		MaxTurns:        cfg.Agent.MaxTurns,
		SystemPrompt:    systemPrompt,
		Tools:           reg,
		Pricing:         usage.DefaultPricing().Merge(cfg.Pricing),
		InjectionAction: cfg.Agent.InjectionAction,
		MaxObservations: cfg.Tools.Vision.MaxObservations,
		OnEvent:         publishTo(events),
	}
	if collector != nil {
		loopCfg.Tracer = collector
	}
	loop := agent.NewLoop(loopCfg)

	started := time.Now().UTC()
	ans, runErr := loop.Run(ctx, goal)

	if st != nil {
		run := buildRunData(loop, cfg, goal, provider.Name(), started, ans, runErr)
		if run != nil {
			saveCtx, cancelSave := context.WithTimeout(context.Background(), 10*time.Second)
			if err := st.SaveRun(saveCtx, run); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not archive run: %v\n", err)
			}
			cancelSave()
		}
	}

	if runErr != nil {
		printRunError(loop, runErr)
		return 1
	}

	if opts.jsonOutput {
		data, _ := json.MarshalIndent(ans, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Print(renderAnswer(ans, loop.Model()))
	return 0
}

// buildRunData snapshots a finished run for the archive. It returns nil when
// the run never started (no turns were recorded).
func buildRunData(loop *agent.Loop, cfg *config.Config, goal, providerName string, started time.Time, ans *agent.FinalAnswer, runErr error) *store.RunData {
	turns := loop.Transcript()
	if len(turns) == 0 {
		return nil
	}
	totals := loop.Usage()
	ended := time.Now().UTC()
	run := &store.RunData{
		ID:            loop.RunID(),
		Goal:          store.TruncateGoal(goal),
		Provider:      providerName,
		Model:         cfg.Provider.Model,
		Status:        store.RunStatusCompleted,
		Turns:         turns,
		InputTokens:   totals.InputUnits,
		OutputTokens:  totals.OutputUnits,
		EstimatedCost: totals.EstimatedCost,
		RoundTrips:    totals.RoundTrips,
		StartedAt:     started,
		EndedAt:       &ended,
	}
	if runErr != nil {
		run.Status = store.RunStatusFailed
		run.Error = runErr.Error()
		return run
	}
	run.FinalText = ans.Text
	run.Observations = ans.Observations
	return run
}

func printRunError(loop *agent.Loop, err error) {
	var ce *agent.CeilingError
	switch {
	case errors.As(err, &ce):
		fmt.Fprintf(os.Stderr, "%s %v\n", styleErr.Render("Error:"), err)
		fmt.Fprintf(os.Stderr, "The model did not finish within %d round-trips (%d turns recorded). Raise --max-turns or check the run with `vidcoach runs show %s`.\n",
			ce.Limit, len(loop.Transcript()), loop.RunID())
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(os.Stderr, "%s run timed out\n", styleErr.Render("Error:"))
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "%s run cancelled\n", styleErr.Render("Error:"))
	default:
		fmt.Fprintf(os.Stderr, "%s %v\n", styleErr.Render("Error:"), err)
	}
}
