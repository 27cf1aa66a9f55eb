package middlewares

import (
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"net/http"
	"time"
)

// DateRangeValidationMiddleware parses the from and to query parameters.
func DateRangeValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := log.GetLogger()
		query := r.URL.Query()
		rawFrom, rawTo := query.Get(http2.FromQuery), query.Get(http2.ToQuery)

		if rawFrom == "" || rawTo == "" {
			logger.Error().Msg(errors.ErrDateRangeRequired)
			errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrDateRangeRequired))
			return
		}

		from, errFrom := time.Parse(http2.DateLayout, rawFrom)
		to, errTo := time.Parse(http2.DateLayout, rawTo)
		if errFrom != nil || errTo != nil || to.Before(from) {
			logger.Error().Str("from", rawFrom).Str("to", rawTo).Msg(errors.ErrInvalidDateRange)
			errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrInvalidDateRange))
			return
		}

		ctx := http2.WithDateRange(r.Context(), http2.DateRange{From: from, To: to})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
