package rukh

import "errors"

var (
	// Integrity failures. Always fatal to the call; never retried automatically.
	ErrCommitmentMismatch = errors.New("rukh: supplied proofs do not match stored commitment")
	ErrInvalidPartition   = errors.New("rukh: split indices are not a disjoint exhaustive partition")
	ErrMsgHashMismatch    = errors.New("rukh: message preimage does not match committed proof")

	// Slot bookkeeping misuse.
	ErrSlotAlreadyInitialized = errors.New("rukh: slot already holds a commitment")
	ErrSlotUninitialized      = errors.New("rukh: slot holds no commitment")

	// Delivery ordering and replay.
	ErrOutOfOrderDelivery  = errors.New("rukh: ordered nonce delivered out of order")
	ErrAlreadyDelivered    = errors.New("rukh: message already delivered")
	ErrFailedMsgPending    = errors.New("rukh: nonce has a pending failed delivery; use the retry path")
	ErrSecretNotRevealed   = errors.New("rukh: delivery secret not revealed for message")
	ErrRelayerNotPreferred = errors.New("rukh: delivery reserved for the preferred relayer")

	// Dispute lifecycle.
	ErrProofNotDelivered       = errors.New("rukh: proof has no delivery record to dispute")
	ErrDisputeWindowClosed     = errors.New("rukh: recommended dispute time has elapsed")
	ErrAlreadyDisputed         = errors.New("rukh: proof already disputed")
	ErrAlreadyResolved         = errors.New("rukh: dispute verdict already recorded")
	ErrNotDisputed             = errors.New("rukh: proof has not been disputed")
	ErrResolutionWindowExpired = errors.New("rukh: dispute resolution window has expired")
	ErrProofInvalidated        = errors.New("rukh: proof was invalidated by dispute")

	// Circuit breaker.
	ErrDeliveryPaused = errors.New("rukh: message delivery paused for application")

	// Failed-message retry accounting.
	ErrFailedMsgNotFound    = errors.New("rukh: no failed message recorded for route and nonce")
	ErrInsufficientRetryFee = errors.New("rukh: payment below recorded retry fee")

	// Fee bookmarks.
	ErrNoBookmarkFound = errors.New("rukh: no fee bookmark for message hash")

	// Authority checks.
	ErrUnauthorizedOracle   = errors.New("rukh: caller is not the configured oracle")
	ErrUnauthorizedResolver = errors.New("rukh: caller is not the configured dispute resolver")
	ErrUnauthorizedAdmin    = errors.New("rukh: caller is not the configured admin")

	// Wiring and configuration.
	ErrAppNotConfigured = errors.New("rukh: application has no engine configuration")
	ErrNilState         = errors.New("rukh: state not configured")
	ErrNilFeeCollector  = errors.New("rukh: fee collector not configured")
	ErrInvalidConfig    = errors.New("rukh: invalid application configuration")
	ErrInvalidDelivery  = errors.New("rukh: malformed delivery entry")
)
