package sse

import (
	"log/slog"
	"time"
)

// KeepAliveWriter abstracts the write so keep-alive can be tested without a
// real HTTP connection.
type KeepAliveWriter interface {
	// WriteKeepAlive writes one keep-alive message; an error means the
	// connection is gone and the sender should stop.
	WriteKeepAlive() error
}

// TickerKeepAlive sends keep-alive pings at a fixed interval until stopped
// or until a write fails.
type TickerKeepAlive struct {
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
}

// NewTickerKeepAlive creates a ticker-based keep-alive sender.
func NewTickerKeepAlive(interval time.Duration) *TickerKeepAlive {
	return &TickerKeepAlive{
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sending pings on the interval. The returned channel closes
// when the sender terminates (explicit Stop or dropped connection).
func (k *TickerKeepAlive) Start(writer KeepAliveWriter, logger *slog.Logger) <-chan struct{} {
	k.ticker = time.NewTicker(k.interval)
	stopChan := make(chan struct{})

	go func() {
		defer close(stopChan)
		defer k.ticker.Stop()

		for {
			select {
			case <-k.ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					logger.Warn("keep-alive write failed, stopping", "error", err)
					return
				}

			case <-k.done:
				return
			}
		}
	}()

	return stopChan
}

// Stop terminates the keep-alive sender. Safe to call multiple times.
func (k *TickerKeepAlive) Stop() {
	select {
	case <-k.done:
	default:
		close(k.done)
	}
}
