package trace

import (
	"context"

	"github.com/dshills/deepgraph/persistence/messagestore"
)

// Reconcile implements spec.md §4.7's reconciliation rule: after the
// engine terminates, the collected trace T replaces the persisted
// trace for this run only if it is strictly longer than what is
// already stored. messagestore.Store.ReconcileTrace already enforces
// replace-when-longer atomically; this wrapper just adapts the
// Collector's output to that call so agent.Runtime has one call to make.
func Reconcile(ctx context.Context, store messagestore.Store, c *Collector) error {
	return store.ReconcileTrace(ctx, c.MessageID(), c.Events())
}
