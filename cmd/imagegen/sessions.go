package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/gemini-image-orchestrator/internal/cli"
	"github.com/fpang/gemini-image-orchestrator/internal/config"
	"github.com/fpang/gemini-image-orchestrator/internal/domain"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions <session-id>",
	Short: "Show an archived processing session",
	Long: `Sessions reads a sealed processing session from the DynamoDB archive
(aws.sessions_table). Archived sessions expire 24 hours after they are sealed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessions,
}

func runSessions(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.AWS.SessionsTable == "" {
		return domain.Validation("imagegen.sessions", "aws.sessions_table is not configured")
	}

	a := &app{cfg: cfg}
	if err := a.initAWS(ctx); err != nil {
		return err
	}
	s, err := a.archive.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found (it may have expired)", args[0])
	}

	if jsonFlag {
		return cli.WriteJSON(os.Stdout, s)
	}
	fmt.Printf("Session: %s\n", s.SessionID)
	fmt.Printf("Prompt: %s\n", s.OriginalPrompt)
	fmt.Printf("Started: %s\n", s.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Printf("Fallback: %t\n", s.FallbackUsed)
	for _, st := range s.Stages {
		fmt.Printf("%-30s %-10s %s\n", st.Name, st.Status, cli.FormatDurationShort(st.Duration()))
	}
	fmt.Printf("Orchestration: %s  Optimization: %s  Generation: %s  Total: %s\n",
		cli.FormatDurationShort(s.OrchestrationTime),
		cli.FormatDurationShort(s.OptimizationTime),
		cli.FormatDurationShort(s.GenerationTime),
		cli.FormatDurationShort(s.TotalProcessingTime))
	return nil
}
