package stripe

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/config"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	stripeapi "github.com/stripe/stripe-go/v82"
	"net/http"
	"time"
)

const pageSize = 100

// Client reads balance transactions of one Stripe account.
type Client struct {
	client    *stripeapi.Client
	accountID string
	logger    *zerolog.Logger
}

func NewClient(cfg config.Stripe) *Client {
	return &Client{
		client:    stripeapi.NewClient(cfg.StripeAPIKey),
		accountID: cfg.StripeAccountID,
		logger:    log.Component("stripe"),
	}
}

// ListTransactions returns every supported balance transaction created in [from, to].
// Pages are fetched by the stripe-go list iterator.
func (c *Client) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	params := c.listParams(from, to)

	result := make([]models.Transaction, 0)
	skipped := 0
	for bt, err := range c.client.V1BalanceTransactions.List(ctx, params) {
		if err != nil {
			return nil, mapError(err)
		}
		tx, ok := FromBalanceTransaction(bt)
		if !ok {
			skipped++
			c.logger.Debug().Str("id", bt.ID).Str("type", string(bt.Type)).Msg("skipping unsupported balance transaction")
			continue
		}
		result = append(result, tx)
	}

	if skipped > 0 {
		c.logger.Info().Int("skipped", skipped).Msg("unsupported balance transactions skipped")
	}
	return result, nil
}

// listParams expands the refunded charge's customer too, its tax status decides the refund's tax code.
func (c *Client) listParams(from, to time.Time) *stripeapi.BalanceTransactionListParams {
	params := &stripeapi.BalanceTransactionListParams{
		CreatedRange: &stripeapi.RangeQueryParams{
			GreaterThanOrEqual: from.Unix(),
			LesserThanOrEqual:  to.Unix(),
		},
	}
	params.Limit = stripeapi.Int64(pageSize)
	params.AddExpand("data.source")
	params.AddExpand("data.source.customer")
	params.AddExpand("data.source.charge")
	params.AddExpand("data.source.charge.customer")
	if c.accountID != "" {
		params.SetStripeAccount(c.accountID)
	}
	return params
}

func mapError(err error) error {
	var stripeErr *stripeapi.Error
	if !apperrors.As(err, &stripeErr) {
		return apperrors.NewTransientError("stripe request failed", err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized, stripeErr.HTTPStatusCode == http.StatusForbidden:
		return apperrors.NewAuthError(fmt.Sprintf("stripe: %s", stripeErr.Msg))
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return apperrors.NewRateLimitedError(0)
	case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
		return apperrors.NewTransientError("stripe unavailable", err)
	}
	return apperrors.NewValidationError(fmt.Sprintf("stripe: %s", stripeErr.Msg))
}
