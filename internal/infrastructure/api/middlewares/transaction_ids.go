package middlewares

import (
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"net/http"
	"strings"
)

// TransactionIDsMiddleware collects transaction_ids, given repeated or comma separated.
func TransactionIDsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids := make([]string, 0)
		for _, raw := range r.URL.Query()[http2.TransactionIDsQuery] {
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}

		if len(ids) == 0 {
			logger := log.GetLogger()
			logger.Error().Msg(errors.ErrTransactionIDsRequired)
			errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrTransactionIDsRequired))
			return
		}

		next.ServeHTTP(w, r.WithContext(http2.WithTransactionIDs(r.Context(), ids)))
	})
}
