package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/odoorpc/internal/batch"
	"github.com/roach88/odoorpc/internal/config"
	"github.com/roach88/odoorpc/internal/odoo"
	"github.com/roach88/odoorpc/internal/rpc"
	"github.com/roach88/odoorpc/internal/snapshot"
	"github.com/roach88/odoorpc/internal/store"
	"github.com/roach88/odoorpc/internal/telemetry"
)

// app is the wiring shared by every command: config, logging, telemetry,
// and (once connected) the transport and façade.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	tel    *telemetry.Manager
	out    *OutputFormatter

	transport *rpc.Transport
	client    *odoo.Client
}

func (o *RootOptions) env() config.Env {
	if o.Env != nil {
		return o.Env
	}
	return os.LookupEnv
}

// setup loads configuration and builds the logger and output formatter.
func setup(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadWithEnv(opts.ConfigPath, opts.env())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	a := &app{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	if cfg.Telemetry.Enabled {
		a.tel, err = telemetry.NewManager(telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    cfg.Telemetry.Exporter,
			Endpoint:    cfg.Telemetry.Endpoint,
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to initialize telemetry", err)
		}
	}
	return a, nil
}

// connect builds the transport and façade. Authentication happens on the
// first call.
func (a *app) connect() error {
	rc := a.cfg.RPC()
	rc.Logger = a.logger
	rc.Telemetry = a.tel
	tr, err := rpc.New(rc)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid connection settings", err)
	}
	a.transport = tr
	a.client = odoo.New(tr, odoo.WithLogger(a.logger))
	return nil
}

// close ends the remote session and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if a.transport != nil {
		if err := a.transport.Logout(ctx); err != nil {
			a.logger.Warn("logout failed", "error", a.tel.MaskText(err.Error()))
		}
	}
	if a.tel != nil {
		if err := a.tel.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

// batcher builds a Batcher from config. Verification reads back through
// the façade.
func (a *app) batcher(verify, multiID bool) *batch.Batcher {
	opts := []batch.Option{
		batch.WithAliases(a.cfg.AliasTable()),
		batch.WithMultiID(multiID),
		batch.WithLogger(a.logger),
		batch.WithTelemetry(a.tel),
	}
	if a.cfg.Batch.Strict {
		opts = append(opts, batch.WithStrict(a.cfg.Known()))
	}
	if verify {
		opts = append(opts, batch.WithVerification(a.client))
	}
	return batch.New(a.client, opts...)
}

// planner builds a Batcher for dry runs. It has no connection and must
// only be used for Plan.
func (a *app) planner() *batch.Batcher {
	opts := []batch.Option{batch.WithAliases(a.cfg.AliasTable()), batch.WithLogger(a.logger)}
	if a.cfg.Batch.Strict {
		opts = append(opts, batch.WithStrict(a.cfg.Known()))
	}
	return batch.New(nil, opts...)
}

// fetcher builds a snapshot Fetcher using the configured whitelists.
func (a *app) fetcher() *snapshot.Fetcher {
	opts := []snapshot.FetchOption{snapshot.WithFetchLogger(a.logger)}
	if w := a.cfg.Whitelist(snapshot.ModelPicking); w != nil {
		opts = append(opts, snapshot.WithPickingFields(w))
	}
	if w := a.cfg.Whitelist(snapshot.ModelMove); w != nil {
		opts = append(opts, snapshot.WithMoveFields(w))
	}
	if w := a.cfg.Whitelist(snapshot.ModelStatus); w != nil {
		opts = append(opts, snapshot.WithStatusFields(w))
	}
	return snapshot.NewFetcher(a.client, opts...)
}

// openStore opens the history database, or returns nil if none is
// configured.
func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store.Path == "" {
		return nil, nil
	}
	st, err := store.Open(a.cfg.Store.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	return st, nil
}

// recordRun stores report if a history database is configured.
func (a *app) recordRun(ctx context.Context, report *batch.BatchReport) error {
	st, err := a.openStore()
	if err != nil || st == nil {
		return err
	}
	defer st.Close()
	if err := st.WriteRun(ctx, report); err != nil {
		return WrapExitError(ExitFailure, "failed to record run", err)
	}
	a.logger.Debug("run recorded", "run_id", report.RunID, "db", a.cfg.Store.Path)
	return nil
}

// finishBatch records and prints report, failing if any record is not ok.
func (a *app) finishBatch(ctx context.Context, report *batch.BatchReport) error {
	if err := a.recordRun(ctx, report); err != nil {
		return err
	}
	if err := a.out.Success(reportView{report}); err != nil {
		return err
	}
	if !report.OK() {
		return WrapExitError(ExitFailure, report.Summary(), errBatchFailed)
	}
	return nil
}

// remoteError wraps a failed remote operation. Arguments rejected before
// any request was sent are command errors.
func remoteError(message string, err error) error {
	var (
		exitErr *ExitError
		argErr  *odoo.InvalidArgumentError
	)
	switch {
	case errors.As(err, &exitErr):
		return err
	case errors.As(err, &argErr):
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}
