package rukh

import (
	"math/big"

	"earlybird/core/types"
)

// State abstracts the subset of persistence functionality required by the
// engine. All keys are derived from (application, route, slot, nonce, message
// hash); exclusivity between concurrent operations is emergent from that
// keying, not from locks held here.
type State interface {
	AppConfig(app [20]byte) (*AppConfig, bool, error)
	PutAppConfig(app [20]byte, cfg *AppConfig) error

	Nonces(route [32]byte) (*types.Nonces, bool, error)
	PutNonces(route [32]byte, n *types.Nonces) error

	// DeliveryCursor is the next ordered nonce the receiving side of a route
	// will accept. It advances on successful delivery and on a recorded
	// failure (failed-and-skipped).
	DeliveryCursor(route [32]byte) (uint64, bool, error)
	PutDeliveryCursor(route [32]byte, next uint64) error

	Slot(app [20]byte, index uint64) (*AggregateSlot, bool, error)
	PutSlot(app [20]byte, index uint64, slot *AggregateSlot) error
	ClearSlot(app [20]byte, index uint64) error

	Validity(proofHash [32]byte) (*MsgProofValidity, bool, error)
	PutValidity(proofHash [32]byte, v *MsgProofValidity) error

	DeliveredMsg(proofHash [32]byte) (*DeliveredMsg, bool, error)
	PutDeliveredMsg(rec *DeliveredMsg) error

	// DeliveredMsgHash maps a message hash to the proof hash that delivered
	// it, guarding against the same message arriving through two proofs.
	DeliveredMsgHash(msgHash [32]byte) ([32]byte, bool, error)
	PutDeliveredMsgHash(msgHash, proofHash [32]byte) error

	DisputeEpoch(app [20]byte) (*DisputeEpoch, bool, error)
	PutDisputeEpoch(app [20]byte, epoch *DisputeEpoch) error

	DeliveryPaused(app [20]byte) (bool, error)
	SetDeliveryPaused(app [20]byte, paused bool) error

	FailedMsg(route [32]byte, nonce uint64) (*FailedMsg, bool, error)
	PutFailedMsg(route [32]byte, nonce uint64, rec *FailedMsg) error
	DeleteFailedMsg(route [32]byte, nonce uint64) error
	FailedMsgIndex(route [32]byte) ([]uint64, error)
	AppendFailedMsgIndex(route [32]byte, nonce uint64) (uint64, error)

	Bookmark(msgHash [32]byte) (*FeeBookmark, bool, error)
	PutBookmark(msgHash [32]byte, b *FeeBookmark) error
	DeleteBookmark(msgHash [32]byte) error
}

// AppReceiver is the destination application's delivery callback.
type AppReceiver interface {
	Receive(senderInstanceID uint64, sender []byte, nonce uint64, payload, additionalInfo []byte) error
}

// ReceiverResolver locates the receiver registered for an application.
type ReceiverResolver interface {
	Receiver(app [20]byte) (AppReceiver, bool)
}

// FeeCollector abstracts the external token-pricing and settlement logic.
// Pricing policy is out of engine scope; the engine only snapshots estimates
// and requests transfers.
type FeeCollector interface {
	Estimate(app [20]byte) (token string, amount *big.Int, err error)
	Collect(payer, beneficiary [20]byte, token string, amount *big.Int) error
}

// DisputerRegistry is notified whenever a dispute invalidates a proof.
type DisputerRegistry interface {
	NotifyInvalidProof(app [20]byte, proofHash [32]byte, disputer [20]byte)
}

// RecsSource supplies the per-application recommended dispute parameters and
// relayer selection hints maintained by the external recs contract.
type RecsSource interface {
	RecommendedDisputeTime(app [20]byte) uint64
	RecommendedDisputeResolutionExtension(app [20]byte) uint64
	RevealedSecret(app [20]byte, msgHash [32]byte) [32]byte
	RecommendedRelayer(app [20]byte) [20]byte
}
