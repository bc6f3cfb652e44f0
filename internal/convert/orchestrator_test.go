package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchocr/batchocr/internal/analyze"
	"github.com/batchocr/batchocr/internal/classify"
	"github.com/batchocr/batchocr/internal/config"
	"github.com/batchocr/batchocr/internal/geometry"
	"github.com/batchocr/batchocr/internal/pdf"
	"github.com/batchocr/batchocr/internal/txn"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// stubDocument serves canned pages keyed by page number.
type stubDocument struct {
	pages map[int]classify.Page
}

func (d *stubDocument) PageCount() int { return len(d.pages) }

func (d *stubDocument) Page(_ context.Context, number int) (classify.Page, error) {
	page, ok := d.pages[number]
	if !ok {
		return classify.Page{}, fmt.Errorf("no page %d", number)
	}
	return page, nil
}

func (d *stubDocument) Close() error { return nil }

// stubReader maps paths to documents; unknown paths fail to open.
type stubReader struct {
	docs map[string]*stubDocument
}

func (r *stubReader) Open(_ context.Context, path string) (pdf.Document, error) {
	doc, ok := r.docs[path]
	if !ok {
		return nil, fmt.Errorf("cannot open %s", path)
	}
	return doc, nil
}

func searchablePage() classify.Page {
	return classify.Page{
		Number: 1,
		Width:  100,
		Height: 100,
		Regions: []geometry.Region{
			{Rect: geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, Kind: geometry.KindText, Words: 50, LongWords: 40},
		},
	}
}

func scannedPage() classify.Page {
	return classify.Page{
		Number: 1,
		Width:  100,
		Height: 100,
		Regions: []geometry.Region{
			{Rect: geometry.Rect{X0: 0, Y0: 0, X1: 100, Y1: 100}, Kind: geometry.KindImage},
		},
	}
}

// stubExporter writes one fake page image per configured path.
type stubExporter struct {
	mu     sync.Mutex
	images map[string]int // path -> image count, 0 means export error
	calls  []string
}

func (e *stubExporter) ExportImages(_ context.Context, path, destDir string) ([]string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, path)
	count := e.images[path]
	e.mu.Unlock()
	if count == 0 {
		return nil, fmt.Errorf("extraction failed for %s", path)
	}
	var out []string
	for i := 1; i <= count; i++ {
		img := filepath.Join(destDir, fmt.Sprintf("page_%d.png", i))
		if err := os.WriteFile(img, []byte("png"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

// stubEngine writes outPath unless told to fail.
type stubEngine struct {
	failWith error
	output   []byte
	inflight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
}

func (e *stubEngine) Convert(_ context.Context, images []string, dpi int, outPath string) error {
	cur := e.inflight.Add(1)
	defer e.inflight.Add(-1)
	for {
		peak := e.peak.Load()
		if cur <= peak || e.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	e.calls.Add(1)
	if e.failWith != nil {
		return e.failWith
	}
	output := e.output
	if output == nil {
		output = []byte("%PDF-1.4 ocr output")
	}
	return os.WriteFile(outPath, output, 0o644)
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 original"), 0o644))
	return path
}

func newOrchestrator(reader pdf.Reader, exporter pdf.ImageExporter, engine *stubEngine, cfg config.Config) *Orchestrator {
	logger := testLogger()
	return New(analyze.New(reader, cfg, logger), exporter, engine, cfg, logger)
}

func TestConvertProducesCandidate(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")

	engine := &stubEngine{}
	exporter := &stubExporter{images: map[string]int{original: 2}}
	o := newOrchestrator(&stubReader{}, exporter, engine, config.Default())

	tx := o.Convert(context.Background(), original)

	assert.Equal(t, txn.StateConverted, tx.State)
	assert.FileExists(t, tx.Candidate)
	data, err := os.ReadFile(original)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 original", string(data), "original must be untouched")
}

func TestConvertExportFailure(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")

	engine := &stubEngine{}
	exporter := &stubExporter{images: map[string]int{}}
	o := newOrchestrator(&stubReader{}, exporter, engine, config.Default())

	tx := o.Convert(context.Background(), original)

	assert.Equal(t, txn.StateFailed, tx.State)
	assert.ErrorContains(t, tx.Err, "extraction failed")
	assert.Equal(t, int64(0), engine.calls.Load(), "engine must not run without images")
	assert.NoFileExists(t, tx.Candidate)
}

func TestConvertEngineFailureRemovesPartialCandidate(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")

	engine := &stubEngine{failWith: errors.New("Tesseract couldn't load any languages!")}
	exporter := &stubExporter{images: map[string]int{original: 1}}
	o := newOrchestrator(&stubReader{}, exporter, engine, config.Default())

	tx := o.Convert(context.Background(), original)

	assert.Equal(t, txn.StateFailed, tx.State)
	assert.ErrorContains(t, tx.Err, "couldn't load any languages")
	assert.NoFileExists(t, tx.Candidate)
}

func TestConvertEmptyCandidateFails(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")

	engine := &stubEngine{output: []byte{}}
	exporter := &stubExporter{images: map[string]int{original: 1}}
	o := newOrchestrator(&stubReader{}, exporter, engine, config.Default())

	tx := o.Convert(context.Background(), original)

	assert.Equal(t, txn.StateFailed, tx.State)
	assert.ErrorContains(t, tx.Err, "empty candidate")
}

func TestRunSkipsSearchableDocuments(t *testing.T) {
	dir := t.TempDir()
	searchable := writePDF(t, dir, "report.pdf")
	scanned := writePDF(t, dir, "scan.pdf")

	reader := &stubReader{docs: map[string]*stubDocument{
		searchable: {pages: map[int]classify.Page{1: searchablePage()}},
		scanned:    {pages: map[int]classify.Page{1: scannedPage()}},
	}}
	engine := &stubEngine{}
	exporter := &stubExporter{images: map[string]int{scanned: 1}}
	o := newOrchestrator(reader, exporter, engine, config.Default())
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), []string{searchable, scanned}, mgr)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "searchable", outcomes[0].SkipReason)
	assert.Nil(t, outcomes[0].Tx)
	require.NotNil(t, outcomes[0].Analysis)
	assert.Equal(t, analyze.VerdictSearchable, outcomes[0].Analysis.Verdict)

	assert.Empty(t, outcomes[1].SkipReason)
	require.NotNil(t, outcomes[1].Tx)
	assert.Equal(t, txn.StateConverted, outcomes[1].Tx.State)
	assert.Len(t, mgr.Transactions(), 1)
}

func TestRunSkipsCandidateInputs(t *testing.T) {
	dir := t.TempDir()
	candidate := writePDF(t, dir, "scan_OCR_.pdf")

	engine := &stubEngine{}
	o := newOrchestrator(&stubReader{}, &stubExporter{}, engine, config.Default())
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), []string{candidate}, mgr)

	require.Len(t, outcomes, 1)
	assert.Equal(t, "candidate file", outcomes[0].SkipReason)
	assert.Empty(t, mgr.Transactions())
}

func TestRunSkipsAlreadyConverted(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")
	existing := writePDF(t, dir, "scan_OCR_.pdf")

	engine := &stubEngine{}
	o := newOrchestrator(&stubReader{}, &stubExporter{}, engine, config.Default())
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), []string{original}, mgr)

	require.Len(t, outcomes, 1)
	assert.Equal(t, "already converted", outcomes[0].SkipReason)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 original", string(data))
}

func TestRunForceReplacesCandidateAndSkipsAnalysis(t *testing.T) {
	dir := t.TempDir()
	original := writePDF(t, dir, "scan.pdf")
	existing := filepath.Join(dir, "scan_OCR_.pdf")
	require.NoError(t, os.WriteFile(existing, []byte("stale"), 0o644))

	cfg := config.Default()
	cfg.Force = true
	engine := &stubEngine{}
	exporter := &stubExporter{images: map[string]int{original: 1}}
	// A reader that would fail analysis proves force bypasses it.
	o := newOrchestrator(&stubReader{}, exporter, engine, cfg)
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), []string{original}, mgr)

	require.Len(t, outcomes, 1)
	assert.Nil(t, outcomes[0].Analysis)
	require.NotNil(t, outcomes[0].Tx)
	assert.Equal(t, txn.StateConverted, outcomes[0].Tx.State)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))
}

func TestRunFailureDoesNotAbortBatch(t *testing.T) {
	dir := t.TempDir()
	broken := writePDF(t, dir, "broken.pdf")
	scanned := writePDF(t, dir, "scan.pdf")

	reader := &stubReader{docs: map[string]*stubDocument{
		scanned: {pages: map[int]classify.Page{1: scannedPage()}},
	}}
	engine := &stubEngine{}
	// broken.pdf cannot be opened, so it is a conversion candidate, but its
	// image export fails too.
	exporter := &stubExporter{images: map[string]int{scanned: 1}}
	o := newOrchestrator(reader, exporter, engine, config.Default())
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), []string{broken, scanned}, mgr)

	require.Len(t, outcomes, 2)
	require.NotNil(t, outcomes[0].Tx)
	assert.Equal(t, txn.StateFailed, outcomes[0].Tx.State)
	require.NotNil(t, outcomes[1].Tx)
	assert.Equal(t, txn.StateConverted, outcomes[1].Tx.State)
	assert.Len(t, mgr.Transactions(), 2)
}

func TestRunBoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Force = true
	cfg.Concurrency = 2

	var paths []string
	images := map[string]int{}
	for i := 0; i < 8; i++ {
		p := writePDF(t, dir, fmt.Sprintf("scan%d.pdf", i))
		paths = append(paths, p)
		images[p] = 1
	}

	engine := &stubEngine{}
	o := newOrchestrator(&stubReader{}, &stubExporter{images: images}, engine, cfg)
	mgr := txn.NewManager(testLogger())

	outcomes := o.Run(context.Background(), paths, mgr)

	require.Len(t, outcomes, 8)
	for _, out := range outcomes {
		require.NotNil(t, out.Tx, "path %s", out.Path)
		assert.Equal(t, txn.StateConverted, out.Tx.State)
	}
	assert.LessOrEqual(t, engine.peak.Load(), int64(2))
}
