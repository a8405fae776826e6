package service

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"golang.org/x/sync/errgroup"
)

// lookupFunc reads one collection.
type lookupFunc func(ctx context.Context, c domainauth.Collection) (domainauth.ProfileRecord, error)

// lookupOutcome is one branch of a fan-out lookup.
type lookupOutcome struct {
	Collection domainauth.Collection
	Record     domainauth.ProfileRecord
	Err        error
	// Order is the 1-based position in which this branch completed.
	Order int
}

func (o lookupOutcome) found() bool    { return o.Err == nil }
func (o lookupOutcome) notFound() bool { return errors.Is(o.Err, ports.ErrRecordNotFound) }

// lookupAccumulator collects branch outcomes. Branches complete on their own
// goroutines, so every write goes through mu.
type lookupAccumulator struct {
	mu        sync.Mutex
	outcomes  []lookupOutcome
	completed int
}

func (a *lookupAccumulator) record(i int, out lookupOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.completed++
	out.Order = a.completed
	a.outcomes[i] = out
}

// lookupAll queries every collection concurrently and returns only after every
// branch has reported, so a fast not-found never preempts a slower success.
// Outcomes are returned in the priority order of collections, not completion order.
func lookupAll(ctx context.Context, collections []domainauth.Collection, fn lookupFunc) []lookupOutcome {
	acc := &lookupAccumulator{outcomes: make([]lookupOutcome, len(collections))}

	var g errgroup.Group
	for i, c := range collections {
		g.Go(func() error {
			rec, err := fn(ctx, c)
			acc.record(i, lookupOutcome{Collection: c, Record: rec, Err: err})
			return nil
		})
	}
	_ = g.Wait() // branches never return errors; failures live in the outcomes

	acc.mu.Lock()
	defer acc.mu.Unlock()
	return append([]lookupOutcome(nil), acc.outcomes...)
}
