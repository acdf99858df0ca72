// Command simulate drives a running proctor service with synthetic students.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/proctor/internal/simulator"
	"github.com/okian/proctor/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultRunTimeout = 10 * time.Minute

type options struct {
	baseURL    string
	sessions   int
	events     int
	profiles   string
	workers    int
	timeout    time.Duration
	settle     time.Duration
	seed       uint64
	output     string
	logFormat  string
	verbose    bool
	runTimeout time.Duration
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Stream synthetic proctoring telemetry to a proctor service",
		Long: `Create an assessment, open one session per simulated student and stream
behavioral events over the WebSocket channel, then report risk scores.

Examples:
  simulate                                   # 30 sessions against localhost:9080
  simulate --sessions 200 --events 100       # Larger cohort
  simulate --profiles cheating --verbose     # Only cheating students
  simulate --url http://proctor:9080 --output envelopes.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.baseURL, "url", "http://localhost:9080", "Base URL of the service")
	f.IntVarP(&o.sessions, "sessions", "s", 30, "Number of student sessions")
	f.IntVarP(&o.events, "events", "e", 40, "Events per session")
	f.StringVarP(&o.profiles, "profiles", "p", "calm,distracted,cheating", "Profiles assigned round-robin")
	f.IntVarP(&o.workers, "workers", "w", 8, "Concurrent session streams")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "HTTP request timeout")
	f.DurationVar(&o.settle, "settle", 30*time.Second, "How long to wait for events to be recorded")
	f.Uint64Var(&o.seed, "seed", uint64(time.Now().UnixNano()), "Event generation seed")
	f.StringVarP(&o.output, "output", "o", "", "Write generated envelopes to this JSON file")
	f.StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "Log every session result")
	f.DurationVar(&o.runTimeout, "run-timeout", defaultRunTimeout, "Overall deadline")
	return cmd
}

func run(ctx context.Context, o *options) error {
	if err := logger.Init(logger.WithFormat(o.logFormat)); err != nil {
		return err
	}
	profiles, err := simulator.ParseProfiles(o.profiles)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	_, err = simulator.Run(ctx, simulator.Config{
		BaseURL:          o.baseURL,
		Sessions:         o.sessions,
		EventsPerSession: o.events,
		Profiles:         profiles,
		Workers:          o.workers,
		Timeout:          o.timeout,
		SettleTimeout:    o.settle,
		Seed:             o.seed,
		OutputFile:       o.output,
		Verbose:          o.verbose,
	})
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
