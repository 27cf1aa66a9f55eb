package app

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/config"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"time"
)

type ReleaseStaleHandler interface {
	Execute(ctx context.Context) error
}

// ReleaseStaleProcess periodically fails sync attempts whose worker died, so they can be retried.
type ReleaseStaleProcess struct {
	handler ReleaseStaleHandler
	config  config.Process
	logger  *zerolog.Logger
}

func NewReleaseStaleProcess(h ReleaseStaleHandler, cfg config.Process) *ReleaseStaleProcess {
	l := log.GetLogger()
	return &ReleaseStaleProcess{handler: h, config: cfg, logger: &l}
}

// Run executes the handler once right away and then on every interval until ctx is done.
func (p *ReleaseStaleProcess) Run(ctx context.Context) error {
	interval := p.config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.execute(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.execute(ctx)
		}
	}
}

func (p *ReleaseStaleProcess) execute(ctx context.Context) {
	if err := p.handler.Execute(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("release stale run failed")
	}
}
