package rukh

import (
	"fmt"

	"earlybird/core/events"
	"earlybird/core/types"
)

// SendEngine is the send-side module of the library. Outbound messages only
// consume a nonce and surface through events; proof commitment on the
// destination side is the oracle's job.
type SendEngine struct {
	library string
	nonces  *NonceLedger
	emitter events.Emitter
	recs    RecsSource
}

// NewSendEngine creates a send module sharing the receive engine's ledger so
// both directions key routes identically.
func NewSendEngine(engine *Engine) *SendEngine {
	return &SendEngine{
		library: engine.library,
		nonces:  engine.nonces,
		emitter: engine.emitter,
		recs:    engine.recs,
	}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (s *SendEngine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		s.emitter = events.NoopEmitter{}
		return
	}
	s.emitter = emitter
}

// SendMessage records an outbound message on the sending route and returns the
// nonce it consumed. Concurrent sends on the same route serialize through the
// nonce ledger; no two calls receive the same nonce.
func (s *SendEngine) SendMessage(caller [20]byte, route types.Route, ordered bool, payload, additionalInfo []byte) (uint64, error) {
	if route.Kind != types.RouteSending {
		return 0, fmt.Errorf("%w: send requires a sending route", ErrInvalidDelivery)
	}
	if caller != route.App {
		return 0, fmt.Errorf("%w: only the owning application may send", ErrInvalidDelivery)
	}
	var (
		nonce uint64
		err   error
	)
	if ordered {
		nonce, err = s.nonces.AdvanceOrdered(route)
	} else {
		nonce, err = s.nonces.AdvanceUnordered(route)
	}
	if err != nil {
		return 0, err
	}
	var relayer [20]byte
	if s.recs != nil {
		relayer = s.recs.RecommendedRelayer(route.App)
	}
	if s.emitter != nil {
		s.emitter.Emit(engineEvent{evt: NewMsgSentEvent(route, nonce, ordered, payload, additionalInfo, relayer)})
	}
	return nonce, nil
}
