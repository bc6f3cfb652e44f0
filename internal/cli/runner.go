// Package cli runs the batchocr commands end to end: it expands input
// arguments, drives the analyzer, converter, and transaction manager, and
// renders the per-document batch report.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/batchocr/batchocr/internal/analyze"
	"github.com/batchocr/batchocr/internal/classify"
	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/convert"
	"github.com/batchocr/batchocr/internal/inputs"
	"github.com/batchocr/batchocr/internal/ocr"
	"github.com/batchocr/batchocr/internal/pdf"
	"github.com/batchocr/batchocr/internal/txn"
)

// OutputFormat controls how batch reports are rendered.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// Runner executes one batch command.
type Runner struct {
	logger *logrus.Logger
	cfg    config.Config
	out    io.Writer
	stdin  io.Reader
	format OutputFormat
	runID  string

	analyzer     *analyze.Analyzer
	orchestrator *convert.Orchestrator
	manager      *txn.Manager
}

// NewRunner wires the production reader and OCR engine into a Runner.
// Reports go to out; stdin backs the "-" input argument.
func NewRunner(cfg config.Config, logger *logrus.Logger, format OutputFormat, out io.Writer, stdin io.Reader) *Runner {
	reader := pdf.NewCPUReader(logger)
	engine := ocr.NewCommandEngine(cfg.OCRCommand, logger)
	analyzer := analyze.New(reader, cfg, logger)

	var opts []txn.Option
	if dir, err := config.Dir(); err == nil {
		opts = append(opts, txn.WithLockFile(filepath.Join(dir, "batch.lock")))
	} else {
		logger.WithError(err).Warn("No config directory, batch lock disabled")
	}

	orchestrator := convert.New(analyzer, reader, engine, cfg, logger)
	manager := txn.NewManager(logger, opts...)
	return newRunner(cfg, logger, format, out, stdin, analyzer, orchestrator, manager)
}

func newRunner(cfg config.Config, logger *logrus.Logger, format OutputFormat, out io.Writer, stdin io.Reader,
	analyzer *analyze.Analyzer, orchestrator *convert.Orchestrator, manager *txn.Manager) *Runner {
	runID := uuid.New().String()
	logger.WithField("run", runID).Debug("Batch run started")
	return &Runner{
		logger:       logger,
		cfg:          cfg,
		out:          out,
		stdin:        stdin,
		format:       format,
		runID:        runID,
		analyzer:     analyzer,
		orchestrator: orchestrator,
		manager:      manager,
	}
}

// documentReport is one document's row in a batch report.
type documentReport struct {
	Path    string       `json:"path"`
	Verdict string       `json:"verdict,omitempty"`
	Skipped string       `json:"skipped,omitempty"`
	State   string       `json:"state,omitempty"`
	Error   string       `json:"error,omitempty"`
	Pages   []pageReport `json:"pages,omitempty"`
}

type pageReport struct {
	Number       int     `json:"page"`
	Class        string  `json:"class"`
	TextPercent  float64 `json:"textPercent"`
	ImagePercent float64 `json:"imagePercent"`
	Error        string  `json:"error,omitempty"`
}

type batchReport struct {
	RunID     string           `json:"runId"`
	Command   string           `json:"command"`
	Documents []documentReport `json:"documents"`
}

// Analyze classifies the leading pages of every input document and reports
// per-page classifications with the document verdict. Nothing is converted.
func (r *Runner) Analyze(ctx context.Context, args []string) error {
	paths, err := inputs.Expand(args, r.stdin, r.logger)
	if err != nil {
		return err
	}
	r.logger.WithField("documents", len(paths)).Info("Analyzing batch")

	reports := make([]documentReport, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			res := r.analyzer.AnalyzeDocument(ctx, path)
			reports[i] = analysisReport(res)
			return nil
		})
	}
	_ = g.Wait()

	return r.render("analyze", reports, nil)
}

// Convert analyzes the inputs and converts each conversion candidate to an
// adjacent candidate file. Originals are never modified; commit swaps them.
func (r *Runner) Convert(ctx context.Context, args []string) error {
	paths, err := inputs.Expand(args, r.stdin, r.logger)
	if err != nil {
		return err
	}
	r.logger.WithField("documents", len(paths)).Info("Converting batch")

	outcomes := r.orchestrator.Run(ctx, paths, r.manager)

	reports := make([]documentReport, len(outcomes))
	failed := 0
	for i, out := range outcomes {
		rep := documentReport{Path: out.Path, Skipped: out.SkipReason}
		if out.Analysis != nil {
			rep = analysisReport(*out.Analysis)
			rep.Skipped = out.SkipReason
		}
		if out.Tx != nil {
			rep.State = out.Tx.State.String()
			if out.Tx.Err != nil {
				rep.Error = out.Tx.Err.Error()
				failed++
			}
		}
		reports[i] = rep
	}

	var summary error
	if failed > 0 {
		summary = fmt.Errorf("%d of %d documents failed to convert", failed, len(outcomes))
	}
	return r.render("convert", reports, summary)
}

// Commit replaces each original with its candidate file. Transactions are
// recovered from the candidate files present next to the inputs.
func (r *Runner) Commit(ctx context.Context, args []string) error {
	return r.mutate(ctx, "commit", args, r.manager.Commit)
}

// Rollback deletes candidate files, leaving every original untouched.
func (r *Runner) Rollback(ctx context.Context, args []string) error {
	return r.mutate(ctx, "rollback", args, r.manager.Rollback)
}

func (r *Runner) mutate(ctx context.Context, command string, args []string, op func(context.Context) error) error {
	paths, err := inputs.Expand(args, r.stdin, r.logger)
	if err != nil {
		return err
	}
	r.manager.Seed(paths)
	if err := op(ctx); err != nil {
		return err
	}

	txs := r.manager.Transactions()
	reports := make([]documentReport, len(txs))
	failed := 0
	for i, tx := range txs {
		reports[i] = documentReport{Path: tx.Original, State: tx.State.String()}
		if tx.Err != nil {
			reports[i].Error = tx.Err.Error()
			failed++
		}
	}

	var summary error
	if failed > 0 {
		summary = fmt.Errorf("%d of %d documents failed to %s", failed, len(txs), command)
	}
	return r.render(command, reports, summary)
}

func analysisReport(res analyze.Result) documentReport {
	rep := documentReport{Path: res.Path, Verdict: res.Verdict.String()}
	if res.Err != nil {
		rep.Error = res.Err.Error()
	}
	for _, pr := range res.Pages {
		page := pageReport{
			Number:       pr.Number,
			Class:        pr.Class.String(),
			TextPercent:  pr.Coverage.TextPercent,
			ImagePercent: pr.Coverage.ImagePercent,
		}
		if pr.Err != nil {
			page.Class = "Error"
			page.Error = pr.Err.Error()
		}
		rep.Pages = append(rep.Pages, page)
	}
	return rep
}

// render writes the batch report and then returns summary, so a failed
// batch still reports every document before the non-zero exit.
func (r *Runner) render(command string, reports []documentReport, summary error) error {
	if r.format == OutputJSON {
		if err := writeJSON(r.out, batchReport{RunID: r.runID, Command: command, Documents: reports}); err != nil {
			return err
		}
		return summary
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	paint := func(s string) string {
		switch s {
		case analyze.VerdictSearchable.String(), classify.Searchable.String(),
			txn.StateConverted.String(), txn.StateCommitted.String(), txn.StateRolledBack.String():
			return green(s)
		case classify.Blank.String(), txn.StatePending.String():
			return yellow(s)
		case analyze.VerdictUnsearchable.String(), txn.StateFailed.String(), "Error":
			return red(s)
		}
		return s
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, rep := range reports {
		switch {
		case rep.Skipped != "":
			fmt.Fprintf(w, "%s\t%s\n", rep.Path, yellow("skipped ("+rep.Skipped+")"))
		case rep.State != "":
			fmt.Fprintf(w, "%s\t%s\n", rep.Path, paint(rep.State))
		default:
			fmt.Fprintf(w, "%s\t%s\n", rep.Path, paint(rep.Verdict))
		}
		if rep.Error != "" {
			fmt.Fprintf(w, "\t%s\n", red(rep.Error))
		}
		for _, page := range rep.Pages {
			if page.Error != "" {
				fmt.Fprintf(w, "  page %d\t%s\t%s\n", page.Number, paint(page.Class), red(page.Error))
				continue
			}
			fmt.Fprintf(w, "  page %d\t%s\ttext %.1f%%\timage %.1f%%\n",
				page.Number, paint(page.Class), page.TextPercent, page.ImagePercent)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return summary
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
