package memory

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)}
}

func charge(id string, fee int64) *models.Transaction {
	return &models.Transaction{
		ID:       id,
		Type:     models.TransactionTypeCharge,
		Amount:   100000,
		Fee:      fee,
		Currency: "USD",
		Created:  time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC).Unix(),
		SourceID: "ch_" + id,
	}
}

func TestTransactionRepository_UpsertImported(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(time.Minute)

	inserted, err := repo.UpsertImported(ctx, charge("txn_1", 3000))
	require.NoError(t, err)
	assert.True(t, inserted)

	_, err = repo.SetSyncing(ctx, "txn_1")
	require.NoError(t, err)
	require.NoError(t, repo.Checkpoint(ctx, "txn_1", models.Linkage{InvoiceID: "I1"}))

	again := charge("txn_1", 0)
	again.Amount = 5
	inserted, err = repo.UpsertImported(ctx, again)
	require.NoError(t, err)
	assert.False(t, inserted)

	stored, err := repo.Get(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), stored.Amount)
	assert.Equal(t, models.StatusSyncing, stored.Status)
	assert.Equal(t, "I1", stored.InvoiceID)

	bySource, err := repo.GetBySourceID(ctx, "ch_txn_1")
	require.NoError(t, err)
	require.NotNil(t, bySource)
	assert.Equal(t, "txn_1", bySource.ID)
}

func TestTransactionRepository_GetBySourceID(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(time.Minute)

	// a charge and its later fee adjustment share one source object
	later := charge("txn_b", 0)
	later.Type = models.TransactionTypeAdjustment
	later.SourceID = "ch_shared"
	later.Created += 3600
	sameTimeHigherID := charge("txn_c", 0)
	sameTimeHigherID.SourceID = "ch_shared"
	first := charge("txn_a", 0)
	first.SourceID = "ch_shared"

	for i := 0; i < 20; i++ {
		for _, tx := range []*models.Transaction{later, sameTimeHigherID, first} {
			_, err := repo.UpsertImported(ctx, tx)
			require.NoError(t, err)
		}
		got, err := repo.GetBySourceID(ctx, "ch_shared")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "txn_a", got.ID)
	}

	missing, err := repo.GetBySourceID(ctx, "ch_unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTransactionRepository_SetSyncing(t *testing.T) {
	ctx := context.Background()

	t.Run("single winner under contention", func(t *testing.T) {
		repo := NewTransactionRepository(time.Minute)
		_, err := repo.UpsertImported(ctx, charge("txn_1", 0))
		require.NoError(t, err)

		n := 100
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners, busy := 0, 0
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := repo.SetSyncing(ctx, "txn_1")
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					winners++
				} else if apperrors.Is(err, apperrors.ErrAlreadySyncing) {
					busy++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, winners)
		assert.Equal(t, n-1, busy)
	})

	t.Run("lease takeover", func(t *testing.T) {
		c := newClock()
		repo := NewTransactionRepository(time.Minute, WithClock(c.Now))
		_, err := repo.UpsertImported(ctx, charge("txn_1", 0))
		require.NoError(t, err)
		_, err = repo.SetSyncing(ctx, "txn_1")
		require.NoError(t, err)

		c.Advance(30 * time.Second)
		_, err = repo.SetSyncing(ctx, "txn_1")
		assert.ErrorIs(t, err, apperrors.ErrAlreadySyncing)

		require.NoError(t, repo.Checkpoint(ctx, "txn_1", models.Linkage{}))
		c.Advance(45 * time.Second)
		_, err = repo.SetSyncing(ctx, "txn_1")
		assert.ErrorIs(t, err, apperrors.ErrAlreadySyncing, "checkpoint refreshes the lease")

		c.Advance(time.Minute)
		tx, err := repo.SetSyncing(ctx, "txn_1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusSyncing, tx.Status)
	})

	t.Run("no takeover without lease", func(t *testing.T) {
		c := newClock()
		repo := NewTransactionRepository(0, WithClock(c.Now))
		_, err := repo.UpsertImported(ctx, charge("txn_1", 0))
		require.NoError(t, err)
		_, err = repo.SetSyncing(ctx, "txn_1")
		require.NoError(t, err)

		c.Advance(24 * time.Hour)
		_, err = repo.SetSyncing(ctx, "txn_1")
		assert.ErrorIs(t, err, apperrors.ErrAlreadySyncing)
	})

	t.Run("unknown id", func(t *testing.T) {
		repo := NewTransactionRepository(time.Minute)
		_, err := repo.SetSyncing(ctx, "txn_missing")
		var notFound *apperrors.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})
}

func TestTransactionRepository_SetResult(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository(time.Minute)
	_, err := repo.UpsertImported(ctx, charge("txn_1", 3000))
	require.NoError(t, err)
	_, err = repo.SetSyncing(ctx, "txn_1")
	require.NoError(t, err)

	_, err = repo.SetResult(ctx, "txn_1", models.Succeeded(models.Linkage{InvoiceID: "I1", PaymentID: "P1"}))
	var validation *apperrors.ValidationError
	require.ErrorAs(t, err, &validation, "a charge with a fee needs its expense")

	tx, err := repo.SetResult(ctx, "txn_1", models.Failed("boom", models.Linkage{InvoiceID: "I1", PaymentID: "P1"}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, tx.Status)
	assert.Equal(t, "boom", tx.FailureReason)

	_, err = repo.SetSyncing(ctx, "txn_1")
	require.NoError(t, err)
	tx, err = repo.SetResult(ctx, "txn_1", models.Succeeded(models.Linkage{InvoiceID: "other", ExpenseID: "E1"}))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, tx.Status)
	assert.Empty(t, tx.FailureReason)
	assert.Equal(t, models.Linkage{InvoiceID: "I1", PaymentID: "P1", ExpenseID: "E1"}, tx.Linkage)

	tx, err = repo.SetResult(ctx, "txn_1", models.Failed("late", models.Linkage{}))
	assert.ErrorIs(t, err, apperrors.ErrAlreadyDone)
	assert.Equal(t, models.StatusSuccess, tx.Status)
	assert.ErrorIs(t, repo.Checkpoint(ctx, "txn_1", models.Linkage{TransferID: "T1"}), apperrors.ErrAlreadyDone)
}

func TestTransactionRepository_ListAndReleaseStale(t *testing.T) {
	ctx := context.Background()
	c := newClock()
	repo := NewTransactionRepository(time.Minute, WithClock(c.Now))

	for i, id := range []string{"txn_a", "txn_b", "txn_c"} {
		tx := charge(id, 0)
		tx.Created += int64(i)
		_, err := repo.UpsertImported(ctx, tx)
		require.NoError(t, err)
	}
	_, err := repo.SetSyncing(ctx, "txn_a")
	require.NoError(t, err)
	c.Advance(10 * time.Minute)
	_, err = repo.SetSyncing(ctx, "txn_b")
	require.NoError(t, err)

	all, err := repo.List(ctx, models.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"txn_c", "txn_b", "txn_a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	syncing, err := repo.List(ctx, models.TransactionFilter{Status: models.StatusSyncing, IDs: []string{"txn_a", "txn_c"}})
	require.NoError(t, err)
	require.Len(t, syncing, 1)
	assert.Equal(t, "txn_a", syncing[0].ID)

	released, err := repo.ReleaseStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "txn_a", released[0].ID)
	assert.Equal(t, repositories.StaleSyncReason, released[0].FailureReason)

	b, err := repo.Get(ctx, "txn_b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSyncing, b.Status)
}

func TestLedger_CreateOrGetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedger()

	first, err := ledger.CreateOrGetInvoice(ctx, models.InvoiceRequest{ExternalRef: "txn_1"})
	require.NoError(t, err)
	second, err := ledger.CreateOrGetInvoice(ctx, models.InvoiceRequest{ExternalRef: "txn_1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, ledger.Records(EntityInvoice))
	assert.Len(t, ledger.Calls(EntityInvoice), 2)
}
