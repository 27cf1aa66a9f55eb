package memory

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"sync"
	"time"
)

// Source serves a fixed set of balance transactions.
type Source struct {
	mu           sync.Mutex
	transactions []models.Transaction
	err          error
}

func NewSource(transactions ...models.Transaction) *Source {
	return &Source{transactions: transactions}
}

// Fail makes every following ListTransactions return err. A nil err clears it.
func (s *Source) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) Add(transactions ...models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, transactions...)
}

func (s *Source) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if tx.Created >= from.Unix() && tx.Created <= to.Unix() {
			out = append(out, tx)
		}
	}
	return out, nil
}
