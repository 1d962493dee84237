package observability

import (
	"strconv"

	"earlybird/core/events"
	"earlybird/core/types"
	"earlybird/native/rukh"
)

// MetricsEmitter counts engine events in prometheus before forwarding them to
// the wrapped emitter. Wrap the real subscriber (or a NoopEmitter) with it
// when wiring the engine.
type MetricsEmitter struct {
	next events.Emitter
}

// NewMetricsEmitter wraps the supplied emitter. A nil next discards events
// after counting.
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &MetricsEmitter{next: next}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(evt events.Event) {
	reg := Engine()
	switch evt.EventType() {
	case rukh.EventTypeProofsCommitted:
		reg.RecordProofBatch()
	case rukh.EventTypeMsgDelivered:
		reg.RecordDelivery("delivered")
	case rukh.EventTypeMsgFailed:
		reg.RecordDelivery("failed")
	case rukh.EventTypeMsgRetried:
		reg.RecordRetry()
	case rukh.EventTypeMsgsSubmitted:
		if n, ok := countAttr(evt, "msgCount"); ok {
			reg.ObserveBatchSize(n)
		}
	case rukh.EventTypeDisputeOpened:
		reg.RecordDispute("opened")
	case rukh.EventTypeDisputeResolved:
		reg.RecordDispute("resolved")
	case rukh.EventTypeDeliveryPaused:
		reg.RecordBreakerTrip()
	case rukh.EventTypeFeesBookmarked:
		reg.RecordBookmark("bookmarked")
	case rukh.EventTypeFeesPaid:
		reg.RecordBookmark("paid")
	}
	m.next.Emit(evt)
}

func countAttr(evt events.Event, key string) (int, bool) {
	payload, ok := evt.(interface{ Event() *types.Event })
	if !ok || payload.Event() == nil {
		return 0, false
	}
	n, err := strconv.Atoi(payload.Event().Attributes[key])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
