// Command hg-alerts creates our alerts in Hosted Graphite through its alerting API.
//
// It is meant to be run once. Alerts cannot be updated: if an alert with the same
// name already exists the API answers 409 Conflict and the run stops. Delete the
// alerts you want to replace by hand before running it again.
//
// Usage:
//
//	hg-alerts [flags] <hosted_graphite_api_key>
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/config"
	"github.com/t77yq/hg-alerts/internal/events"
	"github.com/t77yq/hg-alerts/internal/hostedgraphite"
	"github.com/t77yq/hg-alerts/internal/model"
	"github.com/t77yq/hg-alerts/internal/provisioner"
	"github.com/t77yq/hg-alerts/internal/storage"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "hg-alerts: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, provisions every alert and returns the first failure
func run(args []string, stdout io.Writer) error {
	app := kingpin.New("hg-alerts", "Sets up alerts for our applications using the Hosted Graphite alerting API.")
	app.Version(version)
	app.HelpFlag.Short('h')

	apiKey := app.Arg("hosted_graphite_api_key", "Hosted Graphite API key.").Required().String()

	var endpointSet, timeoutSet, dryRunSet, historySet, retentionSet, natsSet, debugSet bool
	endpoint := app.Flag("endpoint", "Alert creation endpoint.").IsSetByUser(&endpointSet).String()
	timeout := app.Flag("timeout", "Timeout of a single API request.").IsSetByUser(&timeoutSet).Duration()
	dryRun := app.Flag("dry-run", "Print alert payloads instead of creating them.").IsSetByUser(&dryRunSet).Bool()
	historyDB := app.Flag("history-db", "SQLite database recording every submission.").IsSetByUser(&historySet).String()
	retention := app.Flag("history-retention", "Delete history records older than this before the run.").IsSetByUser(&retentionSet).Duration()
	natsURL := app.Flag("nats-url", "NATS server to publish provisioning events to.").IsSetByUser(&natsSet).String()
	debug := app.Flag("debug", "Enable debug logging.").IsSetByUser(&debugSet).Bool()

	if _, err := app.Parse(args); err != nil {
		return err
	}

	// Flags override environment and defaults
	v := config.New()
	overrides := []struct {
		set   bool
		key   string
		value interface{}
	}{
		{endpointSet, config.KeyEndpoint, *endpoint},
		{timeoutSet, config.KeyTimeout, *timeout},
		{dryRunSet, config.KeyDryRun, *dryRun},
		{historySet, config.KeyHistoryDB, *historyDB},
		{retentionSet, config.KeyHistoryRetention, *retention},
		{natsSet, config.KeyNATSURL, *natsURL},
		{debugSet, config.KeyDebug, *debug},
	}
	for _, o := range overrides {
		if o.set {
			v.Set(o.key, o.value)
		}
	}

	cfg, err := config.Load(v, *apiKey)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return provision(ctx, cfg, stdout, logger)
}

func newLogger(debug bool) (*zap.Logger, error) {
	zapConfig := zap.NewDevelopmentConfig()
	if !debug {
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapConfig.DisableStacktrace = true
	}
	return zapConfig.Build()
}

func provision(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *zap.Logger) error {
	var creator provisioner.AlertCreator
	if cfg.DryRun {
		creator = provisioner.NewDryRunCreator(stdout)
	} else {
		client, err := hostedgraphite.NewClient(hostedgraphite.ClientConfig{
			APIKey:    cfg.APIKey,
			Endpoint:  cfg.Endpoint,
			Timeout:   cfg.Timeout,
			UserAgent: "hg-alerts/" + version,
		}, logger)
		if err != nil {
			return err
		}
		creator = client
	}

	provisionerConfig := provisioner.Config{
		Creator:  creator,
		Progress: stdout,
		DryRun:   cfg.DryRun,
	}

	var history *storage.SQLiteProvisionHistory
	if cfg.HistoryDB != "" {
		var err error
		history, err = storage.NewSQLiteProvisionHistory(logger, cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to create provision history storage: %w", err)
		}
		defer history.Close()

		if cfg.HistoryRetention > 0 {
			if _, err := history.DeleteBefore(ctx, time.Now().Add(-cfg.HistoryRetention)); err != nil {
				logger.Warn("Failed to cleanup old provision history", zap.Error(err))
			}
		}
		provisionerConfig.History = history
	}

	if cfg.NATSURL != "" {
		nc, err := connectNATS(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		publisher, err := events.NewPublisher(js, logger)
		if err != nil {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		provisionerConfig.Events = publisher
	}

	p, err := provisioner.New(provisionerConfig, logger)
	if err != nil {
		return err
	}

	_, runErr := p.Run(ctx, provisioner.DefaultPlan())

	if history != nil {
		summarize(ctx, history, p.RunID(), logger)
	}

	return runErr
}

func connectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("hg-alerts"),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(3),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

func summarize(ctx context.Context, history storage.ProvisionHistoryStorage, runID string, logger *zap.Logger) {
	fields := []zap.Field{zap.String("run_id", runID)}
	for _, outcome := range []model.ProvisionOutcome{
		model.ProvisionOutcomeCreated,
		model.ProvisionOutcomeDryRun,
		model.ProvisionOutcomeConflict,
		model.ProvisionOutcomeFailed,
	} {
		count, err := history.Count(ctx, runID, outcome)
		if err != nil {
			logger.Warn("Failed to count provision history", zap.Error(err))
			return
		}
		fields = append(fields, zap.Int(string(outcome), count))
	}
	logger.Info("Provision history recorded", fields...)
}
