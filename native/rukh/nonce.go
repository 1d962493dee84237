package rukh

import (
	"math"

	"earlybird/core/types"
)

// NonceLedger owns the per-route monotonic counters for ordered and unordered
// message streams, plus the receiving-side delivery cursor. Ordered nonces are
// exhausted strictly increasing from zero; unordered nonces strictly
// decreasing from the maximum value, so the two streams never collide.
type NonceLedger struct {
	library string
	state   State
}

// NewNonceLedger creates a ledger scoped to one library name.
func NewNonceLedger(library string, state State) *NonceLedger {
	return &NonceLedger{library: library, state: state}
}

func (l *NonceLedger) load(route types.Route) (*types.Nonces, [32]byte, error) {
	key := route.Key(l.library)
	if l.state == nil {
		return nil, key, ErrNilState
	}
	n, ok, err := l.state.Nonces(key)
	if err != nil {
		return nil, key, err
	}
	if !ok {
		n = &types.Nonces{Ordered: 0, Unordered: math.MaxUint64}
	}
	return n, key, nil
}

// Get returns the current counters for the route, creating nothing.
func (l *NonceLedger) Get(route types.Route) (types.Nonces, error) {
	n, _, err := l.load(route)
	if err != nil {
		return types.Nonces{}, err
	}
	return *n, nil
}

// NextOrdered reports the ordered nonce the next send on the route will consume.
func (l *NonceLedger) NextOrdered(route types.Route) (uint64, error) {
	n, _, err := l.load(route)
	if err != nil {
		return 0, err
	}
	return n.Ordered, nil
}

// AdvanceOrdered consumes and returns the next ordered nonce.
func (l *NonceLedger) AdvanceOrdered(route types.Route) (uint64, error) {
	n, key, err := l.load(route)
	if err != nil {
		return 0, err
	}
	issued := n.Ordered
	n.Ordered++
	if err := l.state.PutNonces(key, n); err != nil {
		return 0, err
	}
	return issued, nil
}

// NextUnordered reports the unordered nonce the next send on the route will consume.
func (l *NonceLedger) NextUnordered(route types.Route) (uint64, error) {
	n, _, err := l.load(route)
	if err != nil {
		return 0, err
	}
	return n.Unordered, nil
}

// AdvanceUnordered consumes and returns the next unordered nonce.
func (l *NonceLedger) AdvanceUnordered(route types.Route) (uint64, error) {
	n, key, err := l.load(route)
	if err != nil {
		return 0, err
	}
	issued := n.Unordered
	n.Unordered--
	if err := l.state.PutNonces(key, n); err != nil {
		return 0, err
	}
	return issued, nil
}

// NextDeliverableOrdered returns the ordered nonce the receiving side of the
// route will accept next. Smaller nonces have been delivered or recorded as
// failed-and-skipped; larger nonces fail with ErrOutOfOrderDelivery.
func (l *NonceLedger) NextDeliverableOrdered(route types.Route) (uint64, error) {
	key := route.Key(l.library)
	if l.state == nil {
		return 0, ErrNilState
	}
	next, ok, err := l.state.DeliveryCursor(key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return next, nil
}

// MarkOrderedConsumed advances the delivery cursor past the given nonce. The
// cursor never regresses: consuming a nonce it already skipped (a re-queued
// failed delivery) leaves it where it is.
func (l *NonceLedger) MarkOrderedConsumed(route types.Route, nonce uint64) error {
	key := route.Key(l.library)
	if l.state == nil {
		return ErrNilState
	}
	current, ok, err := l.state.DeliveryCursor(key)
	if err != nil {
		return err
	}
	if ok && nonce < current {
		return nil
	}
	return l.state.PutDeliveryCursor(key, nonce+1)
}
