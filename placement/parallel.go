package placement

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc/pool"
)

const batchSize = 256

type candidate struct {
	p       orb.Point
	verdict Verdict
}

// parallel splits the loop: generators draw candidates and run the
// read-only parcel and restriction predicates, this goroutine applies the
// distance predicate and the budget in arrival order. Candidates drawn
// after the loop stops are discarded and not counted as attempts.
func (r *run) parallel(ctx context.Context, workers int) error {
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batches := make(chan []candidate, workers)
	r.drawn = xsync.NewCounter()

	generators := pool.New().WithContext(genCtx)
	for w := 0; w < workers; w++ {
		sampler := NewSampler(r.cfg.Sampler, r.bound, r.cfg.MinDistance, r.newRand(int64(w)))

		generators.Go(func(ctx context.Context) error {
			for {
				batch := make([]candidate, batchSize)
				for i := range batch {
					p := sampler.Next()
					batch[i] = candidate{p: p, verdict: r.checker.Admissible(p)}
				}
				r.drawn.Add(batchSize)

				select {
				case batches <- batch:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	err := r.consume(ctx, batches)

	cancel()
	_ = generators.Wait()

	return err
}

func (r *run) consume(ctx context.Context, batches <-chan []candidate) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-batches:
			for _, c := range batch {
				if r.done() {
					return nil
				}
				r.take(c.p, c.verdict)
			}
			r.report(false)
		}
	}
}
