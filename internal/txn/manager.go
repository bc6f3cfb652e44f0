package txn

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

// Manager owns a batch's transactions and runs the commit and rollback
// passes. Both passes only act on Converted transactions and skip
// everything else, so re-running after a partial pass is safe.
type Manager struct {
	mu       sync.Mutex
	txs      []*Transaction
	logger   *logrus.Logger
	lockPath string
}

// Option configures a Manager.
type Option func(*Manager)

// WithLockFile makes commit and rollback passes take an advisory file lock,
// so two batch mutation passes cannot interleave.
func WithLockFile(path string) Option {
	return func(m *Manager) { m.lockPath = path }
}

// NewManager returns an empty Manager.
func NewManager(logger *logrus.Logger, opts ...Option) *Manager {
	m := &Manager{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record hands a transaction to the manager.
func (m *Manager) Record(t *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, t)
}

// Transactions returns the recorded transactions in record order.
func (m *Manager) Transactions() []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Transaction, len(m.txs))
	copy(out, m.txs)
	return out
}

// Seed scans the input paths for candidate files and records a Converted
// transaction per (original, candidate) pair found. This is how standalone
// commit and rollback passes recover the batch state: it lives in the
// naming convention on disk.
func (m *Manager) Seed(paths []string) {
	seen := make(map[string]bool)
	for _, path := range paths {
		var original, candidate string
		if IsCandidate(path) {
			candidate = path
			original = OriginalPath(path)
		} else {
			original = path
			candidate = CandidatePath(path)
		}
		if seen[original] {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		seen[original] = true
		m.Record(&Transaction{Original: original, Candidate: candidate, State: StateConverted})
	}
}

// Commit replaces each Converted transaction's original with its candidate.
// The candidate is verified first and then renamed over the original, so
// there is a single failure point and the original is never deleted without
// its replacement taking its place. Failures mark the transaction Failed
// with the underlying error and the pass continues.
func (m *Manager) Commit(ctx context.Context) error {
	return m.mutate(ctx, "commit", m.commitOne)
}

// Rollback deletes each Converted transaction's candidate file; originals
// are untouched.
func (m *Manager) Rollback(ctx context.Context) error {
	return m.mutate(ctx, "rollback", m.rollbackOne)
}

func (m *Manager) mutate(ctx context.Context, pass string, op func(*Transaction)) error {
	unlock, err := m.acquireLock(pass)
	if err != nil {
		return err
	}
	defer unlock()

	for _, t := range m.Transactions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.State != StateConverted {
			m.logger.WithFields(logrus.Fields{
				"original": t.Original,
				"state":    t.State.String(),
			}).Debugf("Skipping %s of non-converted transaction", pass)
			continue
		}
		op(t)
	}
	return nil
}

func (m *Manager) commitOne(t *Transaction) {
	info, err := os.Stat(t.Candidate)
	if err != nil {
		t.MarkFailed(fmt.Errorf("candidate missing: %w", err))
		return
	}
	if info.Size() == 0 {
		t.MarkFailed(fmt.Errorf("candidate %s is empty", t.Candidate))
		return
	}

	// Renaming over the original is atomic where the platform supports it.
	// Where it does not, the original is only removed once the candidate is
	// known good, and a failure after removal is surfaced loudly: the data
	// still exists under the candidate name.
	if err := os.Rename(t.Candidate, t.Original); err != nil {
		if removeErr := os.Remove(t.Original); removeErr != nil {
			t.MarkFailed(fmt.Errorf("failed to replace original: %w", err))
			return
		}
		if err := os.Rename(t.Candidate, t.Original); err != nil {
			t.MarkFailed(fmt.Errorf("original removed but rename failed, data remains at %s: %w", t.Candidate, err))
			return
		}
	}

	t.State = StateCommitted
	m.logger.WithFields(logrus.Fields{
		"original":  t.Original,
		"candidate": t.Candidate,
	}).Info("Committed replacement")
}

func (m *Manager) rollbackOne(t *Transaction) {
	if err := os.Remove(t.Candidate); err != nil {
		t.MarkFailed(fmt.Errorf("failed to delete candidate: %w", err))
		return
	}
	t.State = StateRolledBack
	m.logger.WithField("candidate", t.Candidate).Info("Rolled back candidate")
}

// acquireLock takes the advisory batch lock when one is configured.
func (m *Manager) acquireLock(pass string) (func(), error) {
	if m.lockPath == "" {
		return func() {}, nil
	}
	fileLock := flock.New(m.lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire batch lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another batch %s is running (lock %s held)", pass, m.lockPath)
	}
	return func() {
		if err := fileLock.Unlock(); err != nil {
			m.logger.WithError(err).Warn("Failed to release batch lock")
		}
	}, nil
}
