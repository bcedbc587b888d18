package poller

//go:generate mockgen -destination=mock_poller.go -package=poller github.com/carverauto/lens-sync/pkg/poller Clock,Ticker,CycleObserver

import (
	"context"
	"time"

	"github.com/carverauto/lens-sync/pkg/models"
)

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// CycleObserver is told about every completed pass over the remote fleet.
// It is called on the poller goroutine and must not block for long.
type CycleObserver interface {
	CycleCompleted(ctx context.Context, report models.CycleReport)
}
