// Package scheduler hosts the scheduling engine as a long-running
// service: a periodic sweep plus a Kafka consumer that turns completion
// reports from field staff into engine completions.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/propflow/upkeep/internal/domain"
	"github.com/propflow/upkeep/internal/engine"
	"github.com/propflow/upkeep/internal/kafka"
	"github.com/propflow/upkeep/internal/sweep"
)

// Service ties the engine to its drivers. The reports consumer is
// optional; without it the service only sweeps.
type Service struct {
	engine  *engine.Engine
	runner  *sweep.Runner
	reports kafka.Consumer
	logger  *slog.Logger
}

func New(eng *engine.Engine, runner *sweep.Runner, reports kafka.Consumer, logger *slog.Logger) *Service {
	return &Service{
		engine:  eng,
		runner:  runner,
		reports: reports,
		logger:  logger,
	}
}

// Run blocks until ctx is cancelled, driving the sweep and, when
// configured, the completion-report consumer. A consumer that dies with
// an infrastructure error takes the whole service down so the failure is
// visible immediately instead of after the next shutdown.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runner.Run(runCtx)
	}()

	if s.reports != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.reports.Subscribe(runCtx, s.handleReport); err != nil {
				select {
				case errCh <- fmt.Errorf("reports consumer: %w", err):
				default:
				}
				cancel()
			}
		}()
	}

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// completionReport is the wire shape field staff publish when a visit is
// done.
type completionReport struct {
	InstanceID      string     `json:"instance_id"`
	WorkDescription string     `json:"work_description"`
	Materials       []string   `json:"materials,omitempty"`
	PhotoURLs       []string   `json:"photo_urls,omitempty"`
	Issues          []string   `json:"issues,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	ActualMinutes   int        `json:"actual_minutes,omitempty"`
	ActualDate      *time.Time `json:"actual_date,omitempty"`
}

// handleReport applies one completion report. Malformed payloads and
// reports the engine rejects (unknown instance, already terminal) are
// logged and committed so they do not wedge the partition; only
// infrastructure errors leave the offset uncommitted for redelivery.
func (s *Service) handleReport(ctx context.Context, msg kafka.Message) error {
	var rep completionReport
	if err := json.Unmarshal(msg.Value, &rep); err != nil {
		s.logger.Warn("discarding malformed completion report",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()))
		return nil
	}
	if rep.InstanceID == "" {
		s.logger.Warn("discarding completion report without instance_id",
			slog.Int64("offset", msg.Offset))
		return nil
	}

	report := domain.CompletionReport{
		WorkDescription: rep.WorkDescription,
		Materials:       rep.Materials,
		PhotoURLs:       rep.PhotoURLs,
		Issues:          rep.Issues,
		Notes:           rep.Notes,
		ActualDuration:  time.Duration(rep.ActualMinutes) * time.Minute,
	}
	if rep.ActualDate != nil {
		report.ActualDate = *rep.ActualDate
	}

	err := s.engine.CompleteInstance(ctx, rep.InstanceID, report)
	if err != nil {
		var notFound *domain.InstanceNotFoundError
		var invalid *domain.InvalidStateError
		if errors.As(err, &notFound) || errors.As(err, &invalid) {
			s.logger.Warn("completion report rejected",
				slog.String("instance_id", rep.InstanceID),
				slog.String("reason", err.Error()))
			return nil
		}
		return fmt.Errorf("complete instance %s: %w", rep.InstanceID, err)
	}

	s.logger.Info("completion report applied",
		slog.String("instance_id", rep.InstanceID))
	return nil
}
