package orchestrator

import (
	"context"
	"time"

	"github.com/bozweather/trader/internal/clients/kalshi"
)

// streamDebounce is the minimum gap between stream-triggered cycles. The
// scheduled cadence still runs; the stream only moves a cycle forward.
const streamDebounce = 2 * time.Minute

// WatchStream consumes exchange stream events and triggers an early trade
// cycle on ticker movement or a fill, debounced. It blocks until ctx is
// cancelled or the stream's reconnect budget is exhausted; after that the
// scheduled cadence is the only driver.
func (o *Orchestrator) WatchStream(ctx context.Context, stream *kalshi.Stream) error {
	runErr := make(chan error, 1)
	go func() { runErr <- stream.Run(ctx) }()

	var lastCycle time.Time
	for ev := range stream.Events() {
		if ev.Type != kalshi.StreamTicker && ev.Type != kalshi.StreamFill {
			continue
		}
		now := o.now()
		if now.Sub(lastCycle) < streamDebounce {
			continue
		}
		lastCycle = now

		o.log.Info().
			Str("ticker", ev.Ticker).
			Str("type", string(ev.Type)).
			Msg("Market moved, running early trade cycle")
		o.RunCycle(ctx)
	}
	return <-runErr
}
