package memory

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"sort"
	"sync"
	"time"
)

// row is one arena slot. Its mutex serialises every read-modify-write of tx.
type row struct {
	mu sync.Mutex
	tx models.Transaction
}

// TransactionRepository keeps transactions in process memory.
// The map lock only guards membership; state changes take the row lock.
type TransactionRepository struct {
	mu    sync.RWMutex
	rows  map[string]*row
	lease time.Duration
	now   func() time.Time
}

type Option func(*TransactionRepository)

// WithClock replaces time.Now, used by lease checks and updated_at.
func WithClock(now func() time.Time) Option {
	return func(r *TransactionRepository) {
		r.now = now
	}
}

// NewTransactionRepository creates an empty store. A syncing row older than lease may be
// claimed again; a non-positive lease disables takeover.
func NewTransactionRepository(lease time.Duration, opts ...Option) *TransactionRepository {
	r := &TransactionRepository{
		rows:  make(map[string]*row),
		lease: lease,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

func (r *TransactionRepository) UpsertImported(ctx context.Context, transaction *models.Transaction) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[transaction.ID]; ok {
		return false, nil
	}

	tx := *transaction
	tx.Status = models.StatusPending
	tx.FailureReason = ""
	tx.Linkage = models.Linkage{}
	tx.UpdatedAt = r.now()
	r.rows[tx.ID] = &row{tx: tx}
	transaction.Status = tx.Status
	transaction.UpdatedAt = tx.UpdatedAt
	return true, nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slot := r.slot(id)
	if slot == nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	return slot.snapshot(), nil
}

// GetBySourceID returns the earliest transaction created by a source object, or nil.
func (r *TransactionRepository) GetBySourceID(ctx context.Context, sourceID string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var earliest *models.Transaction
	for _, slot := range r.slots() {
		tx := slot.snapshot()
		if tx.SourceID != sourceID {
			continue
		}
		if earliest == nil || tx.Created < earliest.Created || (tx.Created == earliest.Created && tx.ID < earliest.ID) {
			earliest = tx
		}
	}
	return earliest, nil
}

func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids map[string]struct{}
	if len(filter.IDs) > 0 {
		ids = make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = struct{}{}
		}
	}

	result := make([]models.Transaction, 0)
	for _, slot := range r.slots() {
		tx := slot.snapshot()
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if ids != nil {
			if _, ok := ids[tx.ID]; !ok {
				continue
			}
		}
		result = append(result, *tx)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Created != result[j].Created {
			return result[i].Created > result[j].Created
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *TransactionRepository) SetSyncing(ctx context.Context, id string) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slot := r.slot(id)
	if slot == nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	now := r.now()
	switch slot.tx.Status {
	case models.StatusSuccess:
		tx := slot.tx
		return &tx, apperrors.ErrAlreadyDone
	case models.StatusSyncing:
		if r.lease <= 0 || now.Sub(slot.tx.UpdatedAt) < r.lease {
			tx := slot.tx
			return &tx, apperrors.ErrAlreadySyncing
		}
	}

	slot.tx.Status = models.StatusSyncing
	slot.tx.FailureReason = ""
	slot.tx.UpdatedAt = now
	tx := slot.tx
	return &tx, nil
}

func (r *TransactionRepository) Checkpoint(ctx context.Context, id string, linkage models.Linkage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := r.slot(id)
	if slot == nil {
		return apperrors.NewNotFoundError("transaction", id)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.tx.Status == models.StatusSuccess {
		return apperrors.ErrAlreadyDone
	}
	slot.tx.Linkage = slot.tx.Linkage.Merge(linkage)
	if slot.tx.Status == models.StatusSyncing {
		slot.tx.UpdatedAt = r.now()
	}
	return nil
}

func (r *TransactionRepository) SetResult(ctx context.Context, id string, outcome models.Outcome) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slot := r.slot(id)
	if slot == nil {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.tx.Status == models.StatusSuccess {
		tx := slot.tx
		return &tx, apperrors.ErrAlreadyDone
	}

	linkage := slot.tx.Linkage.Merge(outcome.Linkage)
	if outcome.Status == models.StatusSuccess && !linkage.Complete(slot.tx.Type, slot.tx.Fee) {
		return nil, apperrors.NewValidationError("success requires the target records of the transaction type")
	}

	slot.tx.Status = outcome.Status
	slot.tx.Linkage = linkage
	slot.tx.FailureReason = ""
	if outcome.Status == models.StatusFailed {
		slot.tx.FailureReason = outcome.FailureReason
	}
	slot.tx.UpdatedAt = r.now()
	tx := slot.tx
	return &tx, nil
}

func (r *TransactionRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	released := make([]models.Transaction, 0)
	now := r.now()
	for _, slot := range r.slots() {
		slot.mu.Lock()
		if slot.tx.Status == models.StatusSyncing && now.Sub(slot.tx.UpdatedAt) >= olderThan {
			slot.tx.Status = models.StatusFailed
			slot.tx.FailureReason = repositories.StaleSyncReason
			slot.tx.UpdatedAt = now
			released = append(released, slot.tx)
		}
		slot.mu.Unlock()
	}
	return released, nil
}

func (r *TransactionRepository) slot(id string) *row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rows[id]
}

func (r *TransactionRepository) slots() []*row {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*row, 0, len(r.rows))
	for _, slot := range r.rows {
		out = append(out, slot)
	}
	return out
}

func (s *row) snapshot() *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.tx
	return &tx
}
