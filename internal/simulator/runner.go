package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Run executes a full simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()
	log := logger.Get().Named("simulator")
	report := &Report{StartTime: time.Now()}

	log.Info(ctx, "starting proctor simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("eventsPerSession", cfg.EventsPerSession),
		logger.Int("workers", cfg.Workers),
		logger.Any("profiles", cfg.Profiles))

	base := NewClient(cfg.BaseURL, cfg.Timeout, 0, "")
	if err := base.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	instructor := base.As(cfg.InstructorID, model.RoleInstructor)
	a, err := instructor.CreateAssessment(ctx, "Simulated exam "+report.StartTime.Format(time.RFC3339), 60)
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	if _, err := instructor.ActivateAssessment(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("activate assessment: %w", err)
	}
	report.AssessmentID = a.ID

	envelopes, err := streamSessions(ctx, cfg, base, a.ID, report)
	if err != nil {
		return nil, err
	}

	if err := settle(ctx, cfg, base, report); err != nil {
		return report, err
	}

	for _, r := range report.Sessions {
		if _, err := base.As(r.UserID, model.RoleStudent).EndSession(ctx, r.SessionID); err != nil {
			return report, fmt.Errorf("end session %d: %w", r.SessionID, err)
		}
	}

	board, err := base.As(cfg.AdminID, model.RoleAdmin).RiskBoard(ctx, cfg.Sessions)
	if err != nil {
		return report, fmt.Errorf("risk board: %w", err)
	}
	report.Board = board
	report.Duration = time.Since(report.StartTime)

	if err := verifyReport(ctx, report); err != nil {
		return report, fmt.Errorf("result verification failed: %w", err)
	}

	if cfg.OutputFile != "" {
		if err := saveEnvelopes(cfg.OutputFile, envelopes); err != nil {
			log.Warn(ctx, "failed to save envelopes", logger.Error(err))
		}
	}

	displayReport(ctx, report, cfg.Verbose)
	return report, nil
}

// streamSessions opens one session per simulated student and streams its
// events. Sessions are processed by cfg.Workers concurrent streams.
func streamSessions(ctx context.Context, cfg Config, base *Client, assessmentID int64, report *Report) ([]model.Envelope, error) {
	gen := NewGenerator(cfg.Seed)
	report.Sessions = make([]SessionResult, cfg.Sessions)
	batches := make([][]model.Envelope, cfg.Sessions)

	var genMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := range cfg.Sessions {
		g.Go(func() error {
			userID := cfg.FirstStudentID + int64(i)
			profile := cfg.Profiles[i%len(cfg.Profiles)]
			student := base.As(userID, model.RoleStudent)

			s, err := student.CreateSession(gctx, assessmentID)
			if err != nil {
				return fmt.Errorf("create session for user %d: %w", userID, err)
			}

			genMu.Lock()
			envs := gen.Envelopes(s.ID, profile, cfg.EventsPerSession, s.StartTime.UnixMilli())
			genMu.Unlock()

			if err := Stream(gctx, cfg.BaseURL, envs); err != nil {
				return fmt.Errorf("stream session %d: %w", s.ID, err)
			}
			report.Sessions[i] = SessionResult{SessionID: s.ID, UserID: userID, Profile: profile, Sent: len(envs)}
			batches[i] = envs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []model.Envelope
	for _, b := range batches {
		all = append(all, b...)
	}
	report.EventsSent = len(all)
	return all, nil
}

// settle polls every session until all sent events are recorded or the
// settle timeout passes.
func settle(ctx context.Context, cfg Config, base *Client, report *Report) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.SettleTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		pending := 0
		for i := range report.Sessions {
			r := &report.Sessions[i]
			if r.Recorded >= r.Sent {
				continue
			}
			s, err := base.As(r.UserID, model.RoleStudent).GetSession(ctx, r.SessionID)
			if err != nil {
				return fmt.Errorf("poll session %d: %w", r.SessionID, err)
			}
			r.Recorded = len(s.BehavioralData)
			r.RiskScore = s.RiskScore
			if r.Recorded < r.Sent {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			report.EventsLost = 0
			for _, r := range report.Sessions {
				report.EventsLost += r.Sent - r.Recorded
			}
			return fmt.Errorf("%w: %d sessions pending", ErrNotSettled, pending)
		case <-ticker.C:
		}
	}
}

// saveEnvelopes writes the generated envelopes as a JSON array.
func saveEnvelopes(filename string, envs []model.Envelope) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPerm); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	buf, err := json.MarshalIndent(envs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal envelopes: %w", err)
	}
	if err := os.WriteFile(filename, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
