package routers

import (
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mufasadev/stripe2qbo/internal/di"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/api/middlewares"
)

func NewRouter(container *di.Container) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Set up v1 routes with a path prefix
	router.Route("/api/v1", func(r chi.Router) {
		r.With(middlewares.DateRangeValidationMiddleware).Post("/import", container.ImportHandler.ImportTransactions)

		r.Route("/sync", func(r chi.Router) {
			sh := container.SyncHandler
			r.With(middlewares.TransactionIDsMiddleware).Post("/", sh.SyncTransactions)
			r.Get("/stream", sh.Stream)
		})

		r.Route("/settings", func(r chi.Router) {
			sh := container.SettingsHandler
			r.Get("/", sh.GetSettings)
			r.Post("/", sh.SaveSettings)
			r.Get("/check", sh.CheckSettings)
		})

		r.Route("/transactions", func(r chi.Router) {
			th := container.TransactionHandler
			r.Get("/", th.ListTransactions)
			r.Route(fmt.Sprintf("/{%s}", http2.TransactionIDParam), func(r chi.Router) {
				r.Use(middlewares.TransactionValidationMiddleware(container.TransactionInteractor))
				r.Get("/", th.GetTransaction)
			})
		})
	})

	return router
}
