package rukh

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"earlybird/core/types"
)

// FailedMessageRegistry records delivery attempts that reverted, keyed by
// (route, nonce), with the retry fee and the relayer owed it. A per-route
// append-only index supports enumeration.
type FailedMessageRegistry struct {
	library string
	state   State
}

// NewFailedMessageRegistry creates a registry scoped to one library name.
func NewFailedMessageRegistry(library string, state State) *FailedMessageRegistry {
	return &FailedMessageRegistry{library: library, state: state}
}

type failedContext struct {
	proofHash [32]byte
	msgHash   [32]byte
	fee       *big.Int
	relayer   [20]byte
	proof     types.MsgProof
}

// FailureHash binds a failure record to its route, nonce, and message.
func FailureHash(routeKey [32]byte, nonce uint64, msgHash [32]byte) [32]byte {
	var nonceBuf [8]byte
	for i := 7; i >= 0; i-- {
		nonceBuf[i] = byte(nonce)
		nonce >>= 8
	}
	return ethcrypto.Keccak256Hash(routeKey[:], nonceBuf[:], msgHash[:])
}

// Record appends a failure entry for the route and nonce. The fee is fixed at
// the currently configured retry fee; the relayer becomes the beneficiary.
func (r *FailedMessageRegistry) Record(route types.Route, nonce uint64, ctx failedContext) (*FailedMsg, error) {
	if r.state == nil {
		return nil, ErrNilState
	}
	routeKey := route.Key(r.library)
	fee := big.NewInt(0)
	if ctx.fee != nil {
		fee = new(big.Int).Set(ctx.fee)
	}
	position, err := r.state.AppendFailedMsgIndex(routeKey, nonce)
	if err != nil {
		return nil, err
	}
	rec := &FailedMsg{
		FailureHash:                           FailureHash(routeKey, nonce, ctx.msgHash),
		ProofHash:                             ctx.proofHash,
		MsgHash:                               ctx.msgHash,
		Fee:                                   fee,
		Relayer:                               ctx.relayer,
		Index:                                 position,
		RecommendedDisputeTime:                ctx.proof.RecommendedDisputeTime,
		RecommendedDisputeResolutionExtension: ctx.proof.RecommendedDisputeResolutionExtension,
	}
	if err := r.state.PutFailedMsg(routeKey, nonce, rec); err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// Get returns the failure entry for a route and nonce.
func (r *FailedMessageRegistry) Get(route types.Route, nonce uint64) (*FailedMsg, bool, error) {
	if r.state == nil {
		return nil, false, ErrNilState
	}
	rec, ok, err := r.state.FailedMsg(route.Key(r.library), nonce)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rec.Clone(), true, nil
}

// Nonces enumerates every nonce that has ever failed on the route, in record
// order. Entries already retried remain in the index; callers cross-check Get.
func (r *FailedMessageRegistry) Nonces(route types.Route) ([]uint64, error) {
	if r.state == nil {
		return nil, ErrNilState
	}
	return r.state.FailedMsgIndex(route.Key(r.library))
}

// EverRecorded reports whether the nonce has ever had a failure captured on
// the route. The index keeps retried nonces, so this stays true after the
// record itself is consumed; ordered redelivery of a skipped nonce keys off it.
func (r *FailedMessageRegistry) EverRecorded(route types.Route, nonce uint64) (bool, error) {
	if r.state == nil {
		return false, ErrNilState
	}
	nonces, err := r.state.FailedMsgIndex(route.Key(r.library))
	if err != nil {
		return false, err
	}
	for _, n := range nonces {
		if n == nonce {
			return true, nil
		}
	}
	return false, nil
}

// Remove clears the failure entry once its retry has run.
func (r *FailedMessageRegistry) Remove(route types.Route, nonce uint64) error {
	if r.state == nil {
		return ErrNilState
	}
	return r.state.DeleteFailedMsg(route.Key(r.library), nonce)
}

// RetryDeliveryForFailedMessage redelivers a failed message. Anyone may call
// it by paying the recorded fee to the recorded relayer. The entry is removed
// whether or not the second attempt succeeds; after a second failure the
// message re-queues only when the oracle commits its proof again, which lets
// SubmitMessages accept the nonce behind the ordered cursor.
func (e *Engine) RetryDeliveryForFailedMessage(caller [20]byte, msg types.Msg, payment *big.Int) (bool, error) {
	cfg, err := e.config(msg.Receiver)
	if err != nil {
		return false, err
	}
	paused, err := e.state.DeliveryPaused(msg.Receiver)
	if err != nil {
		return false, err
	}
	if paused {
		return false, ErrDeliveryPaused
	}
	route := msg.ReceivingRoute()
	routeKey := route.Key(e.library)
	entry, ok, err := e.state.FailedMsg(routeKey, msg.Nonce)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrFailedMsgNotFound
	}
	msgHash := msg.Hash()
	if FailureHash(routeKey, msg.Nonce, msgHash) != entry.FailureHash {
		return false, fmt.Errorf("%w: retry preimage differs from failed message", ErrCommitmentMismatch)
	}
	verdict, err := e.effectiveVerdictFor(entry.ProofHash)
	if err != nil {
		return false, err
	}
	if verdict == VerdictInvalid {
		return false, ErrProofInvalidated
	}
	if entry.Fee.Sign() > 0 {
		if payment == nil || payment.Cmp(entry.Fee) < 0 {
			return false, ErrInsufficientRetryFee
		}
		if e.fees == nil {
			return false, ErrNilFeeCollector
		}
	}
	// Consume the entry before moving the fee so a collector failure cannot
	// charge a later caller twice; an aborted retry recovers through oracle
	// re-submission.
	if err := e.state.DeleteFailedMsg(routeKey, msg.Nonce); err != nil {
		return false, err
	}
	if entry.Fee.Sign() > 0 {
		if err := e.fees.Collect(caller, entry.Relayer, cfg.FeeToken, entry.Fee); err != nil {
			return false, err
		}
	}

	var deliverErr error
	receiver, ok := e.resolveReceiver(msg.Receiver)
	if !ok {
		deliverErr = fmt.Errorf("no receiver registered for application")
	} else {
		deliverErr = receiver.Receive(msg.SenderInstanceID, msg.Sender, msg.Nonce, msg.Payload, msg.AdditionalInfo)
	}
	if deliverErr != nil {
		e.emit(NewMsgFailedEvent(msg.Receiver, msgHash, entry.FailureHash, msg.Nonce, caller, deliverErr))
		return false, nil
	}
	rec := &DeliveredMsg{
		ProofHash:                             entry.ProofHash,
		MsgHash:                               msgHash,
		App:                                   msg.Receiver,
		RouteKey:                              routeKey,
		Nonce:                                 msg.Nonce,
		Ordered:                               msg.Ordered,
		Block:                                 e.blockFn(),
		Relayer:                               caller,
		RecommendedDisputeTime:                entry.RecommendedDisputeTime,
		RecommendedDisputeResolutionExtension: entry.RecommendedDisputeResolutionExtension,
	}
	if err := e.state.PutDeliveredMsg(rec); err != nil {
		return false, err
	}
	if err := e.state.PutDeliveredMsgHash(msgHash, entry.ProofHash); err != nil {
		return false, err
	}
	e.emit(NewMsgRetriedEvent(msg.Receiver, msgHash, msg.Nonce, caller, entry.Relayer, entry.Fee))
	return true, nil
}

// GetFailedMsg returns the failure record for a route and nonce.
func (e *Engine) GetFailedMsg(route types.Route, nonce uint64) (*FailedMsg, bool, error) {
	return e.failed.Get(route, nonce)
}

// ListFailedMsgNonces enumerates the failure index for a route.
func (e *Engine) ListFailedMsgNonces(route types.Route) ([]uint64, error) {
	return e.failed.Nonces(route)
}
