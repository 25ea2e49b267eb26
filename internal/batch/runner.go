// Package batch runs one rename job: fetch the CSV, parse it, apply every
// record in input order and report the outcome.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-email-rename/internal/identity"
	"github.com/withObsrvr/obsrvr-email-rename/internal/logging"
	"github.com/withObsrvr/obsrvr-email-rename/internal/metrics"
	"github.com/withObsrvr/obsrvr-email-rename/internal/records"
	"github.com/withObsrvr/obsrvr-email-rename/internal/report"
	"github.com/withObsrvr/obsrvr-email-rename/internal/source"
)

// Config describes the run for the report. The run ID travels in the context
// (logging.WithRunID).
type Config struct {
	Mode    string
	Backend string
	Version string
	GitSHA  string
}

// Runner orchestrates a single run.
type Runner struct {
	cfg       Config
	fetcher   source.Fetcher
	exec      identity.Executor
	log       *slog.Logger
	metrics   *metrics.Metrics
	publisher report.Publisher
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Defaults to logging.Component("batch").
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithPublisher writes a report after every run that reaches Reporting.
func WithPublisher(p report.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// New creates a runner.
func New(cfg Config, fetcher source.Fetcher, exec identity.Executor, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		exec:    exec,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Component("batch")
	}
	return r
}

// Run executes the job against loc. A non-nil error is run-fatal and comes
// with a nil Result; record failures are only ever reported in the Result.
func (r *Runner) Run(ctx context.Context, loc source.Location) (*Result, error) {
	started := r.now()
	uri := source.URI(r.cfg.Backend, loc)

	r.log.Info("fetching csv", "uri", uri)
	fetchStart := r.now()
	text, err := r.fetcher.Fetch(ctx, loc)
	r.metrics.ObserveFetch(r.now().Sub(fetchStart))
	if err != nil {
		r.metrics.IncRunFatal("fetch")
		r.log.Error("fetch failed", "uri", uri, "error", err)
		return nil, fmt.Errorf("fetch %s: %w", uri, err)
	}

	recs, stats := records.Parse(text)
	r.log.Info("parsed csv",
		"rows", stats.Rows,
		"records", stats.Kept,
		"dropped", stats.Dropped,
	)
	r.metrics.AddRecords(metrics.OutcomeDropped, stats.Dropped)

	res := &Result{Dropped: stats.Dropped}

	if len(recs) == 0 {
		r.log.Warn("no records to process", "uri", uri)
	} else {
		r.process(ctx, recs, res)
		r.summarize(res)
	}

	finished := r.now()
	r.metrics.FinishRun(finished.Sub(started), res.Clean())
	r.publish(ctx, uri, res, started, finished)

	return res, nil
}

// process applies each record in order. One record's failure never stops the
// next record from being attempted.
func (r *Runner) process(ctx context.Context, recs []records.RenameRecord, res *Result) {
	r.log.Info("processing records", "count", len(recs))

	for i, rec := range recs {
		start := r.now()
		uid, err := r.apply(ctx, rec)
		elapsed := r.now().Sub(start)

		if err != nil {
			r.metrics.ObserveUpdate(metrics.OutcomeFailed, elapsed)
			res.fail(Failure{OldEmail: rec.OldEmail, NewEmail: rec.NewEmail, Reason: err.Error()})
			r.log.Warn("email update failed",
				"index", i+1,
				"old_email", rec.OldEmail,
				"new_email", rec.NewEmail,
				"error", err,
			)
			continue
		}

		r.metrics.ObserveUpdate(metrics.OutcomeSucceeded, elapsed)
		res.succeed()
		r.log.Info("email updated",
			"index", i+1,
			"uid", uid,
			"old_email", rec.OldEmail,
			"new_email", rec.NewEmail,
		)
	}
}

// apply runs one executor call, turning a panic into a record failure.
func (r *Runner) apply(ctx context.Context, rec records.RenameRecord) (uid string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during update: %v", p)
		}
	}()
	return r.exec.UpdateEmail(ctx, rec)
}

func (r *Runner) summarize(res *Result) {
	r.log.Info("processing complete",
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"total", res.Total,
	)
	if res.Failed == 0 {
		return
	}

	r.log.Error("some email updates failed", "failed", res.Failed)
	for i, f := range res.Failures {
		r.log.Error("failed update",
			"n", i+1,
			"old_email", f.OldEmail,
			"new_email", f.NewEmail,
			"reason", f.Reason,
		)
	}
}

// publish writes the run report. Failures are logged and never change the
// outcome of the run.
func (r *Runner) publish(ctx context.Context, uri string, res *Result, started, finished time.Time) {
	if r.publisher == nil {
		return
	}

	runID := logging.RunID(ctx)
	rep := &report.Report{
		RunID:      runID,
		Source:     uri,
		Mode:       r.cfg.Mode,
		Status:     status(res),
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
		Total:      res.Total,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Dropped:    res.Dropped,
		Producer: report.ProducerInfo{
			Name:    "email-rename",
			Version: r.cfg.Version,
			GitSHA:  r.cfg.GitSHA,
		},
	}
	for i, f := range res.Failures {
		rep.Failures = append(rep.Failures, report.Failure{
			Index:    i + 1,
			OldEmail: f.OldEmail,
			NewEmail: f.NewEmail,
			Reason:   f.Reason,
		})
	}

	if err := r.publisher.Publish(ctx, rep); err != nil {
		r.log.Warn("failed to publish run report", "error", err)
		return
	}
	r.log.Debug("run report published", "run_id", runID)
}

func status(res *Result) string {
	switch {
	case res.Total == 0:
		return report.StatusEmpty
	case res.Failed > 0:
		return report.StatusFailed
	default:
		return report.StatusClean
	}
}
