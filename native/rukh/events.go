package rukh

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"earlybird/core/types"
)

const (
	EventTypeAppRegistered   = "rukh.app.registered"
	EventTypeConfigUpdated   = "rukh.app.config_updated"
	EventTypeProofsCommitted = "rukh.proofs.committed"
	EventTypeSlotsMerged     = "rukh.proofs.merged"
	EventTypeSlotSplit       = "rukh.proofs.split"
	EventTypeSlotTrimmed     = "rukh.proofs.trimmed"
	EventTypeMsgSent         = "rukh.msg.sent"
	EventTypeMsgsSubmitted   = "rukh.msgs.submitted"
	EventTypeMsgDelivered    = "rukh.msg.delivered"
	EventTypeMsgFailed       = "rukh.msg.failed"
	EventTypeMsgRetried      = "rukh.msg.retried"
	EventTypeDisputeOpened   = "rukh.dispute.opened"
	EventTypeDisputeResolved = "rukh.dispute.resolved"
	EventTypeDeliveryPaused  = "rukh.delivery.paused"
	EventTypeDeliveryResumed = "rukh.delivery.resumed"
	EventTypeFeesBookmarked  = "rukh.fees.bookmarked"
	EventTypeFeesPaid        = "rukh.fees.paid"
)

type engineEvent struct {
	evt *types.Event
}

func (e engineEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e engineEvent) Event() *types.Event { return e.evt }

func hexAttr(b []byte) string { return hex.EncodeToString(b) }

func amountAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// NewAppRegisteredEvent marks the engine configuration of an application.
func NewAppRegisteredEvent(app [20]byte, cfg *AppConfig) *types.Event {
	return &types.Event{Type: EventTypeAppRegistered, Attributes: map[string]string{
		"app":    hexAttr(app[:]),
		"oracle": hexAttr(cfg.Oracle[:]),
		"admin":  hexAttr(cfg.Admin[:]),
	}}
}

// NewConfigUpdatedEvent records a dispatched configuration update.
func NewConfigUpdatedEvent(app [20]byte, update ConfigUpdate) *types.Event {
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: map[string]string{
		"app":  hexAttr(app[:]),
		"kind": strconv.FormatUint(uint64(update.Kind), 10),
	}}
}

// NewProofsCommittedEvent marks a new aggregate commitment in a slot.
func NewProofsCommittedEvent(app [20]byte, slot uint64, hash [32]byte, count int) *types.Event {
	return &types.Event{Type: EventTypeProofsCommitted, Attributes: map[string]string{
		"app":           hexAttr(app[:]),
		"slot":          strconv.FormatUint(slot, 10),
		"aggregateHash": hexAttr(hash[:]),
		"proofCount":    strconv.Itoa(count),
	}}
}

// NewSlotsMergedEvent marks the merge of slotB into slotA.
func NewSlotsMergedEvent(app [20]byte, slotA, slotB uint64, hash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeSlotsMerged, Attributes: map[string]string{
		"app":           hexAttr(app[:]),
		"slot":          strconv.FormatUint(slotA, 10),
		"clearedSlot":   strconv.FormatUint(slotB, 10),
		"aggregateHash": hexAttr(hash[:]),
	}}
}

// NewSlotSplitEvent marks the partition of a slot across two commitments.
func NewSlotSplitEvent(app [20]byte, slot, newSlot uint64, keepHash, moveHash [32]byte) *types.Event {
	return &types.Event{Type: EventTypeSlotSplit, Attributes: map[string]string{
		"app":      hexAttr(app[:]),
		"slot":     strconv.FormatUint(slot, 10),
		"newSlot":  strconv.FormatUint(newSlot, 10),
		"keepHash": hexAttr(keepHash[:]),
		"moveHash": hexAttr(moveHash[:]),
	}}
}

// NewSlotTrimmedEvent marks a pruned commitment.
func NewSlotTrimmedEvent(app [20]byte, slot uint64, hash [32]byte, kept int) *types.Event {
	return &types.Event{Type: EventTypeSlotTrimmed, Attributes: map[string]string{
		"app":           hexAttr(app[:]),
		"slot":          strconv.FormatUint(slot, 10),
		"aggregateHash": hexAttr(hash[:]),
		"keptProofs":    strconv.Itoa(kept),
	}}
}

// NewMsgSentEvent surfaces an outbound message for oracles and relayers.
func NewMsgSentEvent(route types.Route, nonce uint64, ordered bool, payload, additionalInfo []byte, relayer [20]byte) *types.Event {
	attrs := map[string]string{
		"app":          hexAttr(route.App[:]),
		"instance":     strconv.FormatUint(route.CounterpartyInstanceID, 10),
		"counterparty": hexAttr(route.Counterparty),
		"nonce":        strconv.FormatUint(nonce, 10),
		"ordered":      strconv.FormatBool(ordered),
		"payload":      hexAttr(payload),
	}
	if len(additionalInfo) > 0 {
		attrs["additionalInfo"] = hexAttr(additionalInfo)
	}
	if relayer != ([20]byte{}) {
		attrs["recommendedRelayer"] = hexAttr(relayer[:])
	}
	return &types.Event{Type: EventTypeMsgSent, Attributes: attrs}
}

// NewMsgsSubmittedEvent summarises one accepted delivery submission.
func NewMsgsSubmittedEvent(app [20]byte, slot uint64, count int) *types.Event {
	return &types.Event{Type: EventTypeMsgsSubmitted, Attributes: map[string]string{
		"app":      hexAttr(app[:]),
		"slot":     strconv.FormatUint(slot, 10),
		"msgCount": strconv.Itoa(count),
	}}
}

// NewMsgDeliveredEvent marks an accepted delivery.
func NewMsgDeliveredEvent(app [20]byte, msgHash, proofHash [32]byte, nonce uint64, ordered bool, relayer [20]byte) *types.Event {
	return &types.Event{Type: EventTypeMsgDelivered, Attributes: map[string]string{
		"app":       hexAttr(app[:]),
		"msgHash":   hexAttr(msgHash[:]),
		"proofHash": hexAttr(proofHash[:]),
		"nonce":     strconv.FormatUint(nonce, 10),
		"ordered":   strconv.FormatBool(ordered),
		"relayer":   hexAttr(relayer[:]),
	}}
}

// NewMsgFailedEvent marks a delivery attempt captured into the failed registry.
func NewMsgFailedEvent(app [20]byte, msgHash, failureHash [32]byte, nonce uint64, relayer [20]byte, cause error) *types.Event {
	attrs := map[string]string{
		"app":         hexAttr(app[:]),
		"msgHash":     hexAttr(msgHash[:]),
		"failureHash": hexAttr(failureHash[:]),
		"nonce":       strconv.FormatUint(nonce, 10),
		"relayer":     hexAttr(relayer[:]),
	}
	if cause != nil {
		attrs["cause"] = cause.Error()
	}
	return &types.Event{Type: EventTypeMsgFailed, Attributes: attrs}
}

// NewMsgRetriedEvent marks a paid redelivery of a failed message.
func NewMsgRetriedEvent(app [20]byte, msgHash [32]byte, nonce uint64, payer, beneficiary [20]byte, fee *big.Int) *types.Event {
	return &types.Event{Type: EventTypeMsgRetried, Attributes: map[string]string{
		"app":         hexAttr(app[:]),
		"msgHash":     hexAttr(msgHash[:]),
		"nonce":       strconv.FormatUint(nonce, 10),
		"payer":       hexAttr(payer[:]),
		"beneficiary": hexAttr(beneficiary[:]),
		"fee":         amountAttr(fee),
	}}
}

// NewDisputeOpenedEvent marks a new dispute on a delivered proof.
func NewDisputeOpenedEvent(app [20]byte, proofHash [32]byte, disputer [20]byte, deadline uint64) *types.Event {
	return &types.Event{Type: EventTypeDisputeOpened, Attributes: map[string]string{
		"app":                hexAttr(app[:]),
		"proofHash":          hexAttr(proofHash[:]),
		"disputer":           hexAttr(disputer[:]),
		"resolutionDeadline": strconv.FormatUint(deadline, 10),
	}}
}

// NewDisputeResolvedEvent records a verdict.
func NewDisputeResolvedEvent(app [20]byte, proofHash [32]byte, verdict DisputeVerdict, resolver [20]byte) *types.Event {
	return &types.Event{Type: EventTypeDisputeResolved, Attributes: map[string]string{
		"app":       hexAttr(app[:]),
		"proofHash": hexAttr(proofHash[:]),
		"verdict":   verdict.String(),
		"resolver":  hexAttr(resolver[:]),
	}}
}

// NewDeliveryPausedEvent marks a tripped circuit breaker.
func NewDeliveryPausedEvent(app [20]byte, validDisputes uint64) *types.Event {
	return &types.Event{Type: EventTypeDeliveryPaused, Attributes: map[string]string{
		"app":           hexAttr(app[:]),
		"validDisputes": strconv.FormatUint(validDisputes, 10),
	}}
}

// NewDeliveryResumedEvent marks an administrator clearing the breaker.
func NewDeliveryResumedEvent(app [20]byte) *types.Event {
	return &types.Event{Type: EventTypeDeliveryResumed, Attributes: map[string]string{
		"app": hexAttr(app[:]),
	}}
}

// NewFeesBookmarkedEvent marks a fee obligation locked for later settlement.
func NewFeesBookmarkedEvent(app [20]byte, msgHash [32]byte, token string, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFeesBookmarked, Attributes: map[string]string{
		"app":     hexAttr(app[:]),
		"msgHash": hexAttr(msgHash[:]),
		"token":   token,
		"amount":  amountAttr(amount),
	}}
}

// NewFeesPaidEvent marks a settled bookmark.
func NewFeesPaidEvent(app [20]byte, msgHash [32]byte, token string, amount *big.Int, payer [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeesPaid, Attributes: map[string]string{
		"app":     hexAttr(app[:]),
		"msgHash": hexAttr(msgHash[:]),
		"token":   token,
		"amount":  amountAttr(amount),
		"payer":   hexAttr(payer[:]),
	}}
}
