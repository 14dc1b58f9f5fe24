package stream

import (
	"context"
	"sync"
)

// Bridge forwards a subgraph run's custom envelopes onto its parent's
// Bus, in order, so a client watching the top-level stream also sees
// researcher/market-research subgraph progress (spec.md §4.9). Per the
// same section, state_update envelopes are intentionally NOT forwarded:
// only the supervisor graph's own post-reduce state is meaningful to a
// client, a subgraph's intermediate state is not.
type Bridge struct {
	parent     *Bus
	parentNode string
	child      *Bus
	unsub      func()
	wg         sync.WaitGroup
}

// NewBridge starts forwarding child's envelopes onto parent, labelling
// each forwarded envelope's Node as "<parentNode>/<child's node>" so a
// client can tell which call_researcher/call_market_research invocation
// produced it. Call Close once the child engine run returns to stop
// forwarding and release the subscription.
func NewBridge(parent *Bus, parentNode string, child *Bus) *Bridge {
	return NewBridgeFiltered(parent, parentNode, child, nil)
}

// NewBridgeFiltered is NewBridge with an additional keep predicate: an
// envelope (already past the state_update rule) is forwarded only if
// keep is nil or returns true. call_researcher uses this to drop
// web_search_url envelopes it has already seen this run (spec.md §4.5's
// per-run URL dedup, applied at the parent forwarding layer).
func NewBridgeFiltered(parent *Bus, parentNode string, child *Bus, keep func(Envelope) bool) *Bridge {
	ch, unsub := child.Subscribe()
	br := &Bridge{parent: parent, parentNode: parentNode, child: child, unsub: unsub}

	br.wg.Add(1)
	go func() {
		defer br.wg.Done()
		for env := range ch {
			if env.Type == TypeStateUpdate {
				continue
			}
			if keep != nil && !keep(env) {
				continue
			}
			env.Node = br.qualify(env.Node)
			_ = br.parent.Publish(context.Background(), env)
		}
	}()
	return br
}

func (b *Bridge) qualify(childNode string) string {
	if childNode == "" {
		return b.parentNode
	}
	return b.parentNode + "/" + childNode
}

// Close unsubscribes from the child bus, which closes its channel, and
// waits for the forwarding goroutine to drain and exit. Any envelope
// the child emitted just before its engine returned is still delivered.
func (b *Bridge) Close() {
	b.unsub()
	b.wg.Wait()
}
