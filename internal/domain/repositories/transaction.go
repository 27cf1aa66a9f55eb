package repositories

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"time"
)

// SerializationError is the SQLSTATE of a transaction aborted by a concurrent writer.
const SerializationError = "40001"

// TransactionRepository is the single source of truth for sync status.
//
// SetSyncing is the only way into StatusSyncing and acts as a compare-and-set:
// it returns the current row together with errors.ErrAlreadySyncing or
// errors.ErrAlreadyDone when the claim is refused.
type TransactionRepository interface {
	UpsertImported(ctx context.Context, transaction *models.Transaction) (bool, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	GetBySourceID(ctx context.Context, sourceID string) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	SetSyncing(ctx context.Context, id string) (*models.Transaction, error)
	Checkpoint(ctx context.Context, id string, linkage models.Linkage) error
	SetResult(ctx context.Context, id string, outcome models.Outcome) (*models.Transaction, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error)
}

// StaleSyncReason is recorded on rows whose sync attempt stopped holding its lease.
const StaleSyncReason = "sync interrupted"
