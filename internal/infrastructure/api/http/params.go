package http

import (
	"context"
	"time"
)

const (
	TransactionIDParam = "transactionID"

	FromQuery           = "from"
	ToQuery             = "to"
	StatusQuery         = "status"
	TransactionIDsQuery = "transaction_ids"

	DateLayout = "2006-01-02"

	// RequestTimeout bounds the store and resolver calls of a single request.
	RequestTimeout = 10 * time.Second
)

type contextKey string

const (
	dateRangeKey      contextKey = "dateRange"
	transactionIDsKey contextKey = "transactionIDs"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time
	To   time.Time
}

func WithDateRange(ctx context.Context, dr DateRange) context.Context {
	return context.WithValue(ctx, dateRangeKey, dr)
}

func DateRangeFrom(ctx context.Context) (DateRange, bool) {
	dr, ok := ctx.Value(dateRangeKey).(DateRange)
	return dr, ok
}

func WithTransactionIDs(ctx context.Context, ids []string) context.Context {
	return context.WithValue(ctx, transactionIDsKey, ids)
}

func TransactionIDsFrom(ctx context.Context) []string {
	ids, _ := ctx.Value(transactionIDsKey).([]string)
	return ids
}
