package handlers

import (
	"github.com/gorilla/websocket"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/broadcast"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"net/http"
	"time"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
)

type SyncHandler struct {
	engine   *interactor.SyncEngine
	hub      *broadcast.Hub
	upgrader websocket.Upgrader
	logger   *zerolog.Logger
}

func NewSyncHandler(engine *interactor.SyncEngine, hub *broadcast.Hub) *SyncHandler {
	logger := log.GetLogger()
	return &SyncHandler{
		engine: engine,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: &logger,
	}
}

type SyncAccepted struct {
	JobID string `json:"job_id"`
	Count int    `json:"count"`
}

// SyncTransactions queues the batch and answers before any transaction is touched.
// Results arrive on the progress stream.
func (h *SyncHandler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	jobID, count := h.engine.Submit(http2.TransactionIDsFrom(r.Context()))
	h.logger.Info().Str("job_id", jobID).Int("count", count).Msg("sync job submitted")
	writeJSON(w, http.StatusAccepted, SyncAccepted{JobID: jobID, Count: count})
}

// Stream pushes every progress message to a WebSocket client until it goes away.
// Disconnecting never affects running jobs.
func (h *SyncHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg(errors.ErrFailedUpgradeStream)
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Debug().Msg("progress stream client went away")
			return
		case msg, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
