package supervisor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/aggregator"
	"github.com/AlfredDev/orchestratord/internal/logparser"
	"github.com/AlfredDev/orchestratord/internal/persistence"
	"github.com/AlfredDev/orchestratord/internal/tailer"
)

// RunParserPool is the C3 worker pool spec.md §5 places "on a
// dedicated worker pool to avoid starving I/O tasks," sized by the
// caller (default runtime.GOMAXPROCS). Every worker pulls LineBatch
// values off the Tailer's output channel, turns each line into a
// CallEvent through the stateless Parser, updates the Aggregator's
// live view, and enqueues the event for durable persistence —
// grounded on the teacher's stateless handler style, here fanned out
// over a shared channel the way multiple goroutines already compete
// for work on Go channels natively (no extra work-stealing queue
// needed).
func RunParserPool(ctx context.Context, in <-chan tailer.LineBatch, parser *logparser.Parser, agg *aggregator.Aggregator, batcher *persistence.Batcher, workers int, logger zerolog.Logger) error {
	if workers <= 0 {
		workers = 1
	}
	log := logger.With().Str("component", "parser_pool").Logger()

	done := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				case batch, ok := <-in:
					if !ok {
						return
					}
					for _, line := range batch.Lines {
						ev, err := parser.Parse(line, batch.Path)
						if err != nil {
							log.Warn().Err(err).Str("path", batch.Path).Msg("malformed log line skipped")
							continue
						}
						if ev == nil {
							continue
						}
						agg.Record(ev)
						batcher.Enqueue(*ev)
					}
				}
			}
		}()
	}

	for i := 0; i < workers; i++ {
		<-done
	}
	return nil
}
