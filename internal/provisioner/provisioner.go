package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/catalog"
	"github.com/t77yq/hg-alerts/internal/hostedgraphite"
	"github.com/t77yq/hg-alerts/internal/model"
	"github.com/t77yq/hg-alerts/internal/storage"
)

// AlertCreator creates a single alert in the alerting service
type AlertCreator interface {
	CreateAlert(ctx context.Context, alert *model.AlertSpec) error
}

// HistoryRecorder stores submission attempts
type HistoryRecorder interface {
	Store(ctx context.Context, record *storage.ProvisionRecord) error
}

// EventPublisher publishes submission outcomes
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ProvisionEvent) error
}

// Job is one alert to create along with the progress line printed before it is sent
type Job struct {
	Progress string
	Alert    model.AlertSpec
}

// DefaultPlan returns the static catalog followed by the missing-logs alerts
// for every environment and application.
func DefaultPlan() []Job {
	return Plan(catalog.StaticAlerts(), catalog.Environments, catalog.Applications)
}

// Plan builds jobs for the given static alerts and missing-logs cross product
func Plan(static []model.AlertSpec, environments, apps []string) []Job {
	jobs := make([]Job, 0, len(static)+len(environments)*len(apps))
	for _, alert := range static {
		jobs = append(jobs, Job{
			Progress: fmt.Sprintf("Creating alert for %s", alert.Name),
			Alert:    alert,
		})
	}
	for _, environment := range environments {
		for _, app := range apps {
			jobs = append(jobs, Job{
				Progress: fmt.Sprintf("Creating missing logs alert for %s %s", environment, app),
				Alert:    catalog.MissingLogsAlert(environment, app),
			})
		}
	}
	return jobs
}

// Config holds the collaborators of a Provisioner. History and Events are optional.
type Config struct {
	Creator  AlertCreator
	History  HistoryRecorder
	Events   EventPublisher
	Progress io.Writer
	DryRun   bool
}

// Provisioner submits alerts one at a time and stops at the first failure
type Provisioner struct {
	logger   *zap.Logger
	creator  AlertCreator
	history  HistoryRecorder
	events   EventPublisher
	progress io.Writer
	dryRun   bool
	runID    string
}

// New creates a new provisioner
func New(cfg Config, logger *zap.Logger) (*Provisioner, error) {
	if cfg.Creator == nil {
		return nil, errors.New("alert creator is required")
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}

	runID := uuid.New().String()
	return &Provisioner{
		logger:   logger.Named("provisioner").With(zap.String("run_id", runID)),
		creator:  cfg.Creator,
		history:  cfg.History,
		events:   cfg.Events,
		progress: cfg.Progress,
		dryRun:   cfg.DryRun,
		runID:    runID,
	}, nil
}

// RunID identifies this provisioner's run in history and events
func (p *Provisioner) RunID() string {
	return p.runID
}

// Run submits every job in order. It returns the number of alerts submitted
// successfully and the first error, after which no further jobs are sent.
func (p *Provisioner) Run(ctx context.Context, jobs []Job) (int, error) {
	p.logger.Info("Starting alert provisioning",
		zap.Int("alerts", len(jobs)),
		zap.Bool("dry_run", p.dryRun))

	for i := range jobs {
		job := &jobs[i]

		fmt.Fprintln(p.progress, job.Progress)
		p.logger.Info(job.Progress,
			zap.Int("index", i+1),
			zap.Int("total", len(jobs)))

		started := time.Now()
		err := p.creator.CreateAlert(ctx, &job.Alert)
		p.record(ctx, &job.Alert, started, err)

		if err != nil {
			if errors.Is(err, hostedgraphite.ErrAlertExists) {
				p.logger.Error("Alert already exists; delete it manually before re-running",
					zap.String("alert", job.Alert.Name))
			}
			return i, fmt.Errorf("failed to create alert %q: %w", job.Alert.Name, err)
		}
	}

	p.logger.Info("Alert provisioning completed", zap.Int("alerts", len(jobs)))
	return len(jobs), nil
}

func (p *Provisioner) outcome(err error) (model.ProvisionOutcome, int) {
	var statusErr *hostedgraphite.StatusError
	switch {
	case err == nil && p.dryRun:
		return model.ProvisionOutcomeDryRun, 0
	case err == nil:
		return model.ProvisionOutcomeCreated, 0
	case errors.As(err, &statusErr):
		if errors.Is(err, hostedgraphite.ErrAlertExists) {
			return model.ProvisionOutcomeConflict, statusErr.StatusCode
		}
		return model.ProvisionOutcomeFailed, statusErr.StatusCode
	default:
		return model.ProvisionOutcomeFailed, 0
	}
}

// record writes the attempt to history and publishes it. Failures here are only logged.
func (p *Provisioner) record(ctx context.Context, alert *model.AlertSpec, started time.Time, err error) {
	if p.history == nil && p.events == nil {
		return
	}

	outcome, code := p.outcome(err)
	duration := time.Since(started)
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}

	if p.history != nil {
		payload, marshalErr := json.Marshal(alert)
		if marshalErr != nil {
			p.logger.Warn("Failed to encode alert for provisioning history",
				zap.String("alert", alert.Name),
				zap.Error(marshalErr))
		}
		record := &storage.ProvisionRecord{
			ID:          uuid.New().String(),
			RunID:       p.runID,
			AlertName:   alert.Name,
			Metric:      alert.Metric,
			Outcome:     outcome,
			StatusCode:  code,
			Error:       errMsg,
			Payload:     payload,
			SubmittedAt: started,
			Duration:    duration,
		}
		if err := p.history.Store(ctx, record); err != nil {
			p.logger.Warn("Failed to record provisioning history",
				zap.String("alert", alert.Name),
				zap.Error(err))
		}
	}

	if p.events != nil {
		event := &model.ProvisionEvent{
			ID:         uuid.New().String(),
			RunID:      p.runID,
			AlertName:  alert.Name,
			Metric:     alert.Metric,
			Outcome:    outcome,
			StatusCode: code,
			Error:      errMsg,
			Duration:   duration,
			Timestamp:  started.UTC(),
		}
		if err := p.events.Publish(ctx, event); err != nil {
			p.logger.Warn("Failed to publish provisioning event",
				zap.String("alert", alert.Name),
				zap.Error(err))
		}
	}
}
