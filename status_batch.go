package tangelo

import (
	"context"
	"sync"
)

// StatusBatch holds the outcome of querying several daemon ids at once
type StatusBatch struct {
	// Statuses holds the attributes of every id whose query succeeded
	Statuses map[string]DaemonStatus
	// Errors holds the failure of every id whose query did not
	Errors map[string]error
}

// StatusMany runs StatusOf for every id with at most Env.Concurrency
// queries in flight. A failed id never prevents the others from being
// queried.
func (p *Probe) StatusMany(ctx context.Context, ids []string) StatusBatch {
	batch := StatusBatch{
		Statuses: make(map[string]DaemonStatus, len(ids)),
		Errors:   make(map[string]error),
	}
	if len(ids) == 0 {
		return batch
	}

	// Semaphore for concurrency control
	sem := make(chan struct{}, max(p.env.Concurrency, 1))

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				batch.Errors[id] = opErr(OpStatus, id, ErrCommunication, ctx.Err())
				mu.Unlock()
				return
			}

			st, err := p.StatusOf(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Errors[id] = err
				return
			}
			batch.Statuses[id] = st
		}(id)
	}

	wg.Wait()
	return batch
}
