package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neilberkman/linkscout/internal/core/mockserver"
)

var (
	demoAddr        string
	demoMaxDepth    int
	demoMaxPerLevel int
	demoCalls       int
	demoStepDelay   time.Duration
)

var demoCmd = &cobra.Command{
	Use:   "demo-server",
	Short: "Run a local exploration process that grows synthetic trees",
	Long: `Run a self-contained exploration process on a local port.

It speaks the same event protocol as the real backend, so explore and watch
can be tried without any search or AI provider:

  linkscout demo-server &
  linkscout watch --follow Octopus

Unset flags fall back to the [demo] table of the config file.`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoAddr, "addr", "127.0.0.1:5000", "Listen address")
	demoCmd.Flags().IntVar(&demoMaxDepth, "max-depth", 0, "Levels below the article to explore")
	demoCmd.Flags().IntVar(&demoMaxPerLevel, "max-per-level", 0, "Related results per node")
	demoCmd.Flags().IntVar(&demoCalls, "calls-per-minute", 0, "Provider quota shared by all clients")
	demoCmd.Flags().DurationVar(&demoStepDelay, "step-delay", 0, "Pause between discovery steps")
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := openLogger(cfg, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	mc := mockserver.Config{
		MaxDepth:       cfg.Demo.MaxDepth,
		MaxPerLevel:    cfg.Demo.MaxPerLevel,
		CallsPerMinute: cfg.Demo.CallsPerMinute,
		StepDelay:      cfg.Demo.StepDelay.Duration,
	}
	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		mc.MaxDepth = demoMaxDepth
	}
	if flags.Changed("max-per-level") {
		mc.MaxPerLevel = demoMaxPerLevel
	}
	if flags.Changed("calls-per-minute") {
		mc.CallsPerMinute = demoCalls
	}
	if flags.Changed("step-delay") {
		mc.StepDelay = demoStepDelay
	}
	if mc.MaxDepth < 0 || mc.MaxPerLevel < 0 || mc.CallsPerMinute < 0 || mc.StepDelay < 0 {
		return fmt.Errorf("demo settings must not be negative")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Demo exploration process on ws://%s/ws (Ctrl+C to stop)\n", demoAddr)
	logger.Info("demo server starting", "addr", demoAddr, "max_depth", mc.MaxDepth,
		"max_per_level", mc.MaxPerLevel, "calls_per_minute", mc.CallsPerMinute, "step_delay", mc.StepDelay)

	if err := mockserver.New(mc, logger.Logger).ListenAndServe(ctx, demoAddr); err != nil {
		return fmt.Errorf("demo server failed: %w", err)
	}
	return nil
}
