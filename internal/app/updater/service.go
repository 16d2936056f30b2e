package updater

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openctemio/cklmerge/internal/config"
	"github.com/openctemio/cklmerge/internal/metrics"
	"github.com/openctemio/cklmerge/pkg/checklist"
	"github.com/openctemio/cklmerge/pkg/logger"
	"github.com/openctemio/cklmerge/pkg/parsers/commentcsv"
)

// Operation modes.
const (
	ModeMerge   = "merge"
	ModeOpen    = "open"
	ModeInspect = "inspect"
)

const tracerName = "github.com/openctemio/cklmerge/internal/app/updater"

// Options configures the Service.
type Options struct {
	// Strategy selects how merges run: config.StrategySinglePass or
	// config.StrategySequential.
	Strategy string

	// EscapeXML escapes markup characters in comments before writing them.
	EscapeXML bool

	// OpenComment is the fixed comment written by ApplyOpenComment.
	OpenComment string

	// OpenStatus is the STATUS value ApplyOpenComment targets.
	OpenStatus string
}

// DefaultOptions returns the default service options.
func DefaultOptions() Options {
	return Options{
		Strategy:    config.StrategySinglePass,
		OpenComment: config.DefaultOpenComment,
		OpenStatus:  checklist.StatusOpen,
	}
}

// OptionsFromConfig maps application configuration onto service options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Strategy:    cfg.Merge.Strategy,
		EscapeXML:   cfg.Merge.EscapeXML,
		OpenComment: cfg.Open.Comment,
		OpenStatus:  cfg.Open.Status,
	}
}

// Service merges comments into checklist documents. It performs no file I/O:
// callers hand it source text and persist the returned document.
type Service struct {
	opts    Options
	openLoc *checklist.Locator
	logger  *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewService creates a new Service. A nil logger or metrics set is replaced
// by a no-op logger and a private metric set.
func NewService(opts Options, log *logger.Logger, m *metrics.Metrics) (*Service, error) {
	if opts.Strategy == "" {
		opts.Strategy = config.StrategySinglePass
	}
	if opts.Strategy != config.StrategySinglePass && opts.Strategy != config.StrategySequential {
		return nil, fmt.Errorf("unknown merge strategy %q", opts.Strategy)
	}
	if opts.OpenStatus == "" {
		opts.OpenStatus = checklist.StatusOpen
	}

	openLoc := checklist.OpenLocator
	if opts.OpenStatus != checklist.StatusOpen {
		var err error
		openLoc, err = checklist.NewStatusLocator(opts.OpenStatus)
		if err != nil {
			return nil, err
		}
	}

	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}

	return &Service{
		opts:    opts,
		openLoc: openLoc,
		logger:  log.With("service", "updater"),
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// SetTracer replaces the tracer used for operation spans.
func (s *Service) SetTracer(t trace.Tracer) {
	s.tracer = t
}

// Options returns the options the service runs with.
func (s *Service) Options() Options {
	return s.opts
}

// MergeComments ingests csvText and writes each comment into the record of
// cklText whose Vuln_Num matches. Identifiers absent from the checklist and
// malformed CSV rows are reported, not treated as failures.
func (s *Service) MergeComments(ctx context.Context, csvText, cklText string) (*Result, error) {
	ctx, op := s.begin(ctx, ModeMerge)
	res, err := s.mergeComments(ctx, op, csvText, cklText)
	op.end(res, err)
	return res, err
}

func (s *Service) mergeComments(ctx context.Context, op *operation, csvText, cklText string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(csvText) {
		return nil, checklist.NewParseError("comment export", errors.New("text is not valid UTF-8"))
	}
	if !utf8.ValidString(cklText) {
		return nil, checklist.NewParseError("checklist", errors.New("text is not valid UTF-8"))
	}

	parsed := commentcsv.ParseDetailed(csvText)
	comments := map[string]string(parsed.Comments)
	if s.opts.EscapeXML {
		comments = escapeComments(comments)
	}

	var (
		doc   string
		stats checklist.MergeStats
		err   error
	)
	switch s.opts.Strategy {
	case config.StrategySequential:
		doc, stats, err = checklist.MergeCommentsSequential(cklText, comments)
		if err != nil {
			return nil, err
		}
	default:
		doc, stats = checklist.MergeComments(cklText, comments)
	}

	res := &Result{
		Document: doc,
		Report: Report{
			RunID:        op.runID,
			Mode:         ModeMerge,
			Records:      stats.Records,
			Updated:      stats.Updated,
			CSVRows:      parsed.Rows,
			Comments:     len(parsed.Comments),
			SkippedLines: parsed.SkippedLines,
			Duplicates:   parsed.Duplicates,
			Unmatched:    stats.Unmatched,
		},
	}

	if len(parsed.SkippedLines) > 0 {
		op.log.Warn("skipped malformed CSV rows", "lines", parsed.SkippedLines)
	}
	if len(parsed.Duplicates) > 0 {
		op.log.Warn("duplicate identifiers in CSV, last row wins", "identifiers", parsed.Duplicates)
	}
	if len(stats.Unmatched) > 0 {
		op.log.Warn("identifiers not found in checklist", "identifiers", stats.Unmatched)
	}

	s.metrics.RowsSkipped.Add(float64(len(parsed.SkippedLines)))
	s.metrics.IdentifiersUnmatched.Add(float64(len(stats.Unmatched)))
	return res, nil
}

// ApplyOpenComment writes the configured fixed comment into every record
// whose STATUS is the configured status, in one pass.
func (s *Service) ApplyOpenComment(ctx context.Context, cklText string) (*Result, error) {
	ctx, op := s.begin(ctx, ModeOpen)
	res, err := s.applyOpenComment(ctx, op, cklText)
	op.end(res, err)
	return res, err
}

func (s *Service) applyOpenComment(ctx context.Context, op *operation, cklText string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(cklText) {
		return nil, checklist.NewParseError("checklist", errors.New("text is not valid UTF-8"))
	}

	comment := s.opts.OpenComment
	if s.opts.EscapeXML {
		comment = checklist.EscapeXML(comment)
	}

	doc, n := checklist.Apply(cklText, s.openLoc, comment)

	op.log.Debug("stamped comment", "status", s.opts.OpenStatus, "updated", n)
	return &Result{
		Document: doc,
		Report: Report{
			RunID:   op.runID,
			Mode:    ModeOpen,
			Records: checklist.CountRecords(cklText),
			Updated: n,
		},
	}, nil
}

// Inspect lists the VULN records of cklText without changing it.
func (s *Service) Inspect(ctx context.Context, cklText string) ([]checklist.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(cklText) {
		return nil, checklist.NewParseError("checklist", errors.New("text is not valid UTF-8"))
	}
	return checklist.Records(cklText), nil
}

func escapeComments(comments map[string]string) map[string]string {
	out := make(map[string]string, len(comments))
	for id, text := range comments {
		out[id] = checklist.EscapeXML(text)
	}
	return out
}

// operation carries the per-call logging, tracing and timing state.
type operation struct {
	s     *Service
	mode  string
	runID string
	start time.Time
	span  trace.Span
	log   *logger.Logger
}

func (s *Service) begin(ctx context.Context, mode string) (context.Context, *operation) {
	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.ContextKeyRunID, runID)
	ctx, span := s.tracer.Start(ctx, "updater."+mode,
		trace.WithAttributes(
			attribute.String("cklmerge.mode", mode),
			attribute.String("cklmerge.run_id", runID),
		),
	)
	return ctx, &operation{
		s:     s,
		mode:  mode,
		runID: runID,
		start: time.Now(),
		span:  span,
		log:   s.logger.WithContext(ctx).With("mode", mode),
	}
}

func (op *operation) end(res *Result, err error) {
	defer op.span.End()

	elapsed := time.Since(op.start)
	op.s.metrics.OperationDuration.WithLabelValues(op.mode).Observe(elapsed.Seconds())

	if err != nil {
		op.s.metrics.OperationsTotal.WithLabelValues(op.mode, "error").Inc()
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
		op.log.WithError(err).Error("operation failed", "code", checklist.Code(err))
		return
	}

	res.Report.Duration = elapsed
	op.s.metrics.OperationsTotal.WithLabelValues(op.mode, "success").Inc()
	op.s.metrics.RecordsScanned.WithLabelValues(op.mode).Add(float64(res.Report.Records))
	op.s.metrics.RecordsUpdated.WithLabelValues(op.mode).Add(float64(res.Report.Updated))
	op.span.SetAttributes(
		attribute.Int("cklmerge.records", res.Report.Records),
		attribute.Int("cklmerge.updated", res.Report.Updated),
		attribute.Int("cklmerge.unmatched", len(res.Report.Unmatched)),
	)
	op.span.SetStatus(codes.Ok, "")
	op.log.Info("checklist updated",
		"records", res.Report.Records,
		"updated", res.Report.Updated,
		"duration_ms", elapsed.Milliseconds(),
	)
}
