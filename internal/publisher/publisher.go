package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aniladanir/retry"
	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	repository "github.com/fleetdesk/whatsapp-gateway/internal/repository/connstate"
)

// StatePublisher mirrors session transitions into the connection_config
// row. Writes are fire-and-forget from the session manager's point of
// view: failures are logged here and never propagate, but each write is
// retried a bounded number of times since stale connection state is
// user-visible in the web app.
type StatePublisher struct {
	repo     repository.Repository
	logger   *slog.Logger
	retrier  *retry.Retrier
	identity string
}

func NewStatePublisher(repo repository.Repository, logger *slog.Logger, identity string, maxRetryOnFail *int) (*StatePublisher, error) {
	retrierOpts := make([]retry.Option, 0)
	if maxRetryOnFail != nil {
		retrierOpts = append(retrierOpts, retry.WithMaxAttemps(*maxRetryOnFail))
	}
	retrier, err := retry.New(retrierOpts...)
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	return &StatePublisher{
		repo:     repo,
		logger:   logger,
		retrier:  retrier,
		identity: identity,
	}, nil
}

func (p *StatePublisher) Publish(ctx context.Context, snap domain.ConnectionSnapshot) {
	rec := snap.Record(p.identity, time.Now().UTC())

	retryFunc := func(attempt int) (terminate bool) {
		if err := p.repo.UpsertState(ctx, rec); err != nil {
			p.logger.Error("failed to write connection state",
				slog.Int("attempt", attempt),
				slog.String("state", snap.State.String()),
				"error", err.Error())
			return false
		}
		return true
	}

	if success := <-p.retrier.Retry(ctx, retryFunc, true); !success {
		p.logger.Error("giving up on connection state write", slog.String("state", snap.State.String()))
		return
	}

	if err := p.repo.CacheSnapshot(ctx, rec); err != nil {
		p.logger.Error("failed to cache connection snapshot", "error", err.Error())
	}
}
