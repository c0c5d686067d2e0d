package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fixpointd/fixpoint/internal/config"
	"github.com/fixpointd/fixpoint/internal/engine"
	"github.com/fixpointd/fixpoint/internal/logging"
	"github.com/fixpointd/fixpoint/pkg/models"
)

var (
	submitType     string
	submitPriority int
	submitWait     time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a task and wait for its result",
	Long: `Submit a single task, run it to completion, and print the outcome.

Compound descriptions are decomposed into dependency-ordered subtasks
before execution. Use --type to pick the handler and --priority to set
urgency (1 is highest, 10 lowest).

Examples:
  fixpoint submit "fix the import error in parser.go"
  fixpoint submit --type analyze "analyze memory usage"
  fixpoint submit "analyze the auth module then fix the session bug"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitType, "type", "custom", "Task type: fix, code, analyze, repair, optimize, monitor, heal, or custom")
	submitCmd.Flags().IntVar(&submitPriority, "priority", models.PriorityMedium, "Task priority, 1 (highest) to 10 (lowest)")
	submitCmd.Flags().DurationVar(&submitWait, "wait", 60*time.Second, "How long to wait for completion")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	typ := models.TaskType(submitType)
	if !typ.Valid() {
		return fmt.Errorf("unknown task type %q", submitType)
	}
	description := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// One-shot run: no archive churn, no background scanning.
	cfg.State.Path = ""
	cfg.Detector.AutoFix = false
	cfg.Detector.ScanPaths = nil
	cfg.Detector.WatchPaths = nil

	log := logging.Nop()
	if cfg.Log.Console && cfg.Log.Level == "debug" {
		log = logging.New(logging.Config{Level: cfg.Log.Level, Console: true})
	}

	eng := engine.New(cfg, engine.WithLogger(log))
	registerBuiltinHandlers(eng.Pool())

	task := models.NewTask(uuid.NewString(), typ, map[string]any{"description": description}, submitPriority)
	dispatchID, err := eng.Dispatcher().Dispatch(task)
	if err != nil {
		return fmt.Errorf("dispatching task: %w", err)
	}

	if strings.HasPrefix(dispatchID, "decomposed:") {
		color.New(color.FgCyan).Printf("Decomposed into subtasks (%s)\n", dispatchID)
	} else {
		fmt.Printf("Dispatched task %s\n", dispatchID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitWait)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	// Poll until the queue drains and every executor is idle again.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			return fmt.Errorf("timed out after %s with work still pending", submitWait)
		case <-ticker.C:
		}
		m := eng.Metrics()
		if m.TasksQueued == 0 && m.ActiveExecutors == 0 && m.TasksCompleted+m.TasksFailed > 0 {
			break
		}
	}
	cancel()
	<-done

	printResults(eng)
	return nil
}

func printResults(eng *engine.Engine) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	for _, r := range eng.Pool().CompletedResults() {
		green.Printf("✓ %s", r.TaskID)
		fmt.Printf("  %s on %s in %s\n", r.Type, r.ExecutorID, r.ExecutionTime.Round(time.Millisecond))
	}
	for _, r := range eng.Pool().FailedResults() {
		red.Printf("✗ %s", r.TaskID)
		fmt.Printf("  %s: %s\n", r.Type, r.Error)
	}

	m := eng.Metrics()
	fmt.Printf("\n%d completed, %d failed\n", m.TasksCompleted, m.TasksFailed)
}
