// Package convert turns unsearchable documents into candidate replacement
// files by driving the external OCR engine, one transaction per document.
package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/batchocr/batchocr/internal/analyze"
	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/ocr"
	"github.com/batchocr/batchocr/internal/pdf"
	"github.com/batchocr/batchocr/internal/txn"
)

// Outcome is one input document's fate in a conversion run.
type Outcome struct {
	Path string
	// SkipReason is set when no conversion was attempted.
	SkipReason string
	// Analysis holds the verdict detail when the document was analyzed.
	Analysis *analyze.Result
	// Tx is the conversion transaction, nil when skipped.
	Tx *txn.Transaction
}

// Orchestrator converts conversion candidates. Each document's file
// mutations stay on a single worker; documents are independent.
type Orchestrator struct {
	analyzer *analyze.Analyzer
	exporter pdf.ImageExporter
	engine   ocr.Engine
	cfg      config.Config
	logger   *logrus.Logger
}

// New returns an Orchestrator.
func New(analyzer *analyze.Analyzer, exporter pdf.ImageExporter, engine ocr.Engine, cfg config.Config, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		analyzer: analyzer,
		exporter: exporter,
		engine:   engine,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run analyzes and converts the batch with at most cfg.Concurrency
// conversions in flight, records every transaction with mgr, and returns
// per-document outcomes in input order. Document failures never abort the
// batch.
func (o *Orchestrator) Run(ctx context.Context, paths []string, mgr *txn.Manager) []Outcome {
	outcomes := make([]Outcome, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = Outcome{Path: path, SkipReason: "run cancelled"}
				return nil
			}
			outcomes[i] = o.processDocument(ctx, path, mgr)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) processDocument(ctx context.Context, path string, mgr *txn.Manager) Outcome {
	out := Outcome{Path: path}

	if txn.IsCandidate(path) {
		out.SkipReason = "candidate file"
		o.logger.WithField("path", path).Info("Skipping candidate file")
		return out
	}

	candidate := txn.CandidatePath(path)
	if _, err := os.Stat(candidate); err == nil {
		if !o.cfg.Force {
			out.SkipReason = "already converted"
			o.logger.WithField("candidate", candidate).Info("Skipping, candidate already exists")
			return out
		}
		if err := os.Remove(candidate); err != nil {
			tx := txn.New(path)
			tx.MarkFailed(fmt.Errorf("failed to remove stale candidate: %w", err))
			mgr.Record(tx)
			out.Tx = tx
			return out
		}
	}

	if o.cfg.Force {
		o.logger.WithField("path", path).Info("Force converting")
	} else {
		res := o.analyzer.AnalyzeDocument(ctx, path)
		out.Analysis = &res
		if res.Verdict == analyze.VerdictSearchable {
			out.SkipReason = "searchable"
			o.logger.WithField("path", path).Info("Skipping searchable document")
			return out
		}
		o.logger.WithField("path", path).Info("Document is not searchable, converting")
	}

	tx := o.Convert(ctx, path)
	mgr.Record(tx)
	out.Tx = tx
	return out
}

// Convert runs one document's conversion and returns its transaction in
// state Converted or Failed. The original file is never modified.
func (o *Orchestrator) Convert(ctx context.Context, path string) *txn.Transaction {
	tx := txn.New(path)

	imageDir, err := os.MkdirTemp("", "batchocr_images_*")
	if err != nil {
		tx.MarkFailed(fmt.Errorf("failed to create image directory: %w", err))
		return tx
	}
	defer func() {
		if err := os.RemoveAll(imageDir); err != nil {
			o.logger.WithError(err).Warn("Failed to clean up image directory")
		}
	}()

	images, err := o.exporter.ExportImages(ctx, path, imageDir)
	if err != nil {
		tx.MarkFailed(err)
		return tx
	}
	if len(images) == 0 {
		tx.MarkFailed(fmt.Errorf("no page images extracted from %s", path))
		return tx
	}

	o.logger.WithFields(logrus.Fields{
		"path":   path,
		"images": len(images),
		"dpi":    o.cfg.DPI,
	}).Debug("Invoking OCR engine")

	if err := o.engine.Convert(ctx, images, o.cfg.DPI, tx.Candidate); err != nil {
		// Remove a partial candidate so commit cannot pick it up.
		if removeErr := os.Remove(tx.Candidate); removeErr != nil && !os.IsNotExist(removeErr) {
			o.logger.WithError(removeErr).Warn("Failed to remove partial candidate")
		}
		tx.MarkFailed(err)
		return tx
	}

	info, err := os.Stat(tx.Candidate)
	if err != nil {
		tx.MarkFailed(fmt.Errorf("OCR engine reported success but produced no candidate: %w", err))
		return tx
	}
	if info.Size() == 0 {
		tx.MarkFailed(fmt.Errorf("OCR engine produced an empty candidate %s", tx.Candidate))
		return tx
	}

	if err := tx.MarkConverted(); err != nil {
		tx.MarkFailed(err)
		return tx
	}

	o.logger.WithField("candidate", tx.Candidate).Info("Candidate created")
	return tx
}
