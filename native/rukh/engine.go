package rukh

import (
	"fmt"

	"earlybird/core/events"
	"earlybird/core/types"
)

// Engine is the receive-side module of the optimistic verification library.
// It gates delivery on committed proof batches, runs the dispute machinery,
// and keeps the nonce, failed-message, and fee-bookmark ledgers consistent.
//
// The engine has no internal goroutines; every exported method is one atomic
// operation triggered by an external call. Integrity errors leave state
// untouched.
type Engine struct {
	library   string
	state     State
	emitter   events.Emitter
	fees      FeeCollector
	disputers DisputerRegistry
	receivers ReceiverResolver
	recs      RecsSource
	feeWallet [20]byte
	blockFn   func() uint64

	nonces    *NonceLedger
	slots     *AggregateProofStore
	epochs    *DisputeEpochManager
	failed    *FailedMessageRegistry
	bookmarks *FeeBookmarkLedger
}

// NewEngine creates an engine with a no-op emitter and a zero block source.
// Callers must wire state (and usually a block source) before use.
func NewEngine() *Engine {
	e := &Engine{
		library: LibraryName,
		emitter: events.NoopEmitter{},
		blockFn: func() uint64 { return 0 },
	}
	e.rebuild()
	return e
}

func (e *Engine) rebuild() {
	e.nonces = NewNonceLedger(e.library, e.state)
	e.slots = NewAggregateProofStore(e.state)
	e.epochs = NewDisputeEpochManager(e.state, func() uint64 { return e.blockFn() })
	e.failed = NewFailedMessageRegistry(e.library, e.state)
	e.bookmarks = NewFeeBookmarkLedger(e.state)
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) {
	e.state = state
	e.rebuild()
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetFeeCollector configures the external fee estimation and settlement hook.
func (e *Engine) SetFeeCollector(fees FeeCollector) { e.fees = fees }

// SetDisputerRegistry configures the registry notified of invalidated proofs.
func (e *Engine) SetDisputerRegistry(reg DisputerRegistry) { e.disputers = reg }

// SetReceiverResolver configures the lookup used to reach application receivers.
func (e *Engine) SetReceiverResolver(r ReceiverResolver) { e.receivers = r }

// SetRecsSource configures the external recommended-parameters contract.
func (e *Engine) SetRecsSource(recs RecsSource) { e.recs = recs }

// SetFeeWallet configures the beneficiary of settled fee bookmarks.
func (e *Engine) SetFeeWallet(addr [20]byte) { e.feeWallet = addr }

// SetBlockFunc overrides the block-height source. Primarily intended for
// tests to drive deadline transitions deterministically.
func (e *Engine) SetBlockFunc(blockFn func() uint64) {
	if blockFn == nil {
		e.blockFn = func() uint64 { return 0 }
		return
	}
	e.blockFn = blockFn
}

// Nonces exposes the ledger for the send module and getters.
func (e *Engine) Nonces() *NonceLedger { return e.nonces }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(engineEvent{evt: event})
}

func (e *Engine) config(app [20]byte) (*AppConfig, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	cfg, ok, err := e.state.AppConfig(app)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAppNotConfigured
	}
	return cfg, nil
}

// RegisterApp stores the initial engine configuration for an application. A
// replacement of an existing configuration requires its admin.
func (e *Engine) RegisterApp(caller, app [20]byte, cfg *AppConfig) error {
	if e.state == nil {
		return ErrNilState
	}
	existing, ok, err := e.state.AppConfig(app)
	if err != nil {
		return err
	}
	if ok && caller != existing.Admin {
		return ErrUnauthorizedAdmin
	}
	sanitized, err := SanitizeConfig(cfg)
	if err != nil {
		return err
	}
	if err := e.state.PutAppConfig(app, sanitized); err != nil {
		return err
	}
	e.emit(NewAppRegisteredEvent(app, sanitized))
	return nil
}

// UpdateAppConfig applies one kind-tagged configuration update. Admin-gated.
func (e *Engine) UpdateAppConfig(caller, app [20]byte, update ConfigUpdate) error {
	cfg, err := e.config(app)
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	switch update.Kind {
	case ConfigUpdateOracle:
		cfg.Oracle = update.Address
	case ConfigUpdateRelayer:
		cfg.Relayer = update.Address
	case ConfigUpdateDisputeResolver:
		cfg.DisputeResolver = update.Address
	case ConfigUpdateAdmin:
		cfg.Admin = update.Address
	case ConfigUpdateDisputeEpochLength:
		cfg.DisputeEpochLength = update.Number
	case ConfigUpdateMaxValidDisputes:
		cfg.MaxValidDisputesPerEpoch = update.Number
	case ConfigUpdateRetryFee:
		cfg.RetryFee = update.Amount
	case ConfigUpdateFeeToken:
		cfg.FeeToken = update.Token
	case ConfigUpdateDeliverDirectly:
		cfg.DeliverDirectly = update.Flag
	case ConfigUpdateDeliveryGasBudget:
		cfg.DeliveryGasBudget = update.Number
	default:
		return fmt.Errorf("%w: unknown update kind %d", ErrInvalidConfig, update.Kind)
	}
	sanitized, err := SanitizeConfig(cfg)
	if err != nil {
		return err
	}
	if err := e.state.PutAppConfig(app, sanitized); err != nil {
		return err
	}
	e.emit(NewConfigUpdatedEvent(app, update))
	return nil
}

// ClearDeliveryPause lifts the circuit breaker for an application. Admin-gated;
// the breaker never resets automatically.
func (e *Engine) ClearDeliveryPause(caller, app [20]byte) error {
	cfg, err := e.config(app)
	if err != nil {
		return err
	}
	if caller != cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	if err := e.state.SetDeliveryPaused(app, false); err != nil {
		return err
	}
	e.emit(NewDeliveryResumedEvent(app))
	return nil
}

// DeliveryPausedFor reports whether the circuit breaker is tripped for an app.
func (e *Engine) DeliveryPausedFor(app [20]byte) (bool, error) {
	if e.state == nil {
		return false, ErrNilState
	}
	return e.state.DeliveryPaused(app)
}

// SubmitMessageProofs commits a batch of message proofs into a slot. Restricted
// to the application's configured oracle.
func (e *Engine) SubmitMessageProofs(caller, app [20]byte, slotIndex uint64, proofs []types.MsgProof) ([32]byte, error) {
	cfg, err := e.config(app)
	if err != nil {
		return [32]byte{}, err
	}
	if caller != cfg.Oracle {
		return [32]byte{}, ErrUnauthorizedOracle
	}
	hash, err := e.slots.Commit(app, slotIndex, proofs)
	if err != nil {
		return [32]byte{}, err
	}
	e.emit(NewProofsCommittedEvent(app, slotIndex, hash, len(proofs)))
	return hash, nil
}

// MergeSlots combines two committed batches. Oracle-gated.
func (e *Engine) MergeSlots(caller, app [20]byte, slotA, slotB uint64, proofsA, proofsB []types.MsgProof) ([32]byte, error) {
	cfg, err := e.config(app)
	if err != nil {
		return [32]byte{}, err
	}
	if caller != cfg.Oracle {
		return [32]byte{}, ErrUnauthorizedOracle
	}
	hash, err := e.slots.Merge(app, slotA, slotB, proofsA, proofsB)
	if err != nil {
		return [32]byte{}, err
	}
	e.emit(NewSlotsMergedEvent(app, slotA, slotB, hash))
	return hash, nil
}

// SplitSlot partitions a committed batch across two slots. Oracle-gated.
func (e *Engine) SplitSlot(caller, app [20]byte, slotIndex uint64, proofs []types.MsgProof, keepIdx, moveIdx []uint64, newIndex uint64) ([32]byte, [32]byte, error) {
	cfg, err := e.config(app)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if caller != cfg.Oracle {
		return [32]byte{}, [32]byte{}, ErrUnauthorizedOracle
	}
	keepHash, moveHash, err := e.slots.Split(app, slotIndex, proofs, keepIdx, moveIdx, newIndex)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	e.emit(NewSlotSplitEvent(app, slotIndex, newIndex, keepHash, moveHash))
	return keepHash, moveHash, nil
}

// TrimSlot prunes a committed batch down to the keep subset. Oracle-gated.
func (e *Engine) TrimSlot(caller, app [20]byte, slotIndex uint64, proofs []types.MsgProof, keepIdx []uint64) ([32]byte, error) {
	cfg, err := e.config(app)
	if err != nil {
		return [32]byte{}, err
	}
	if caller != cfg.Oracle {
		return [32]byte{}, ErrUnauthorizedOracle
	}
	hash, err := e.slots.Trim(app, slotIndex, proofs, keepIdx)
	if err != nil {
		return [32]byte{}, err
	}
	e.emit(NewSlotTrimmedEvent(app, slotIndex, hash, len(keepIdx)))
	return hash, nil
}

// Slot returns the stored commitment for a slot index.
func (e *Engine) Slot(app [20]byte, index uint64) (*AggregateSlot, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	return e.state.Slot(app, index)
}

type deliveryPlan struct {
	msg       types.Msg
	proof     types.MsgProof
	proofHash [32]byte
	msgHash   [32]byte
	route     types.Route
	routeKey  [32]byte
}

// SubmitMessages verifies the full preimage of a committed slot and delivers
// the selected messages. The whole call is validated before any mutation so an
// integrity failure has no effect; per-message receiver failures are captured
// into the failed-message registry rather than propagated. A state I/O error
// mid-batch aborts the call with earlier deliveries already applied; those
// stay applied and the rest of the batch can be re-submitted.
func (e *Engine) SubmitMessages(relayer, app [20]byte, slotIndex uint64, proofs []types.MsgProof, deliveries []types.Delivery) ([]types.DeliveryOutcome, error) {
	cfg, err := e.config(app)
	if err != nil {
		return nil, err
	}
	paused, err := e.state.DeliveryPaused(app)
	if err != nil {
		return nil, err
	}
	if paused {
		return nil, ErrDeliveryPaused
	}
	slot, ok, err := e.state.Slot(app, slotIndex)
	if err != nil {
		return nil, err
	}
	if !ok || !slot.Initialized {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotUninitialized, slotIndex)
	}
	if types.AggregateHash(proofs) != slot.Hash {
		return nil, fmt.Errorf("%w: slot %d", ErrCommitmentMismatch, slotIndex)
	}

	plans, err := e.planDeliveries(relayer, app, cfg, proofs, deliveries)
	if err != nil {
		return nil, err
	}

	outcomes := make([]types.DeliveryOutcome, 0, len(plans))
	for i := range plans {
		outcome, err := e.applyDelivery(relayer, app, cfg, &plans[i])
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	e.emit(NewMsgsSubmittedEvent(app, slotIndex, len(plans)))
	return outcomes, nil
}

// planDeliveries performs the pure validation pass: preimage binding, secret
// and relayer gating, replay checks, and ordered-nonce sequencing (including
// intra-batch sequencing).
func (e *Engine) planDeliveries(relayer, app [20]byte, cfg *AppConfig, proofs []types.MsgProof, deliveries []types.Delivery) ([]deliveryPlan, error) {
	preferred := cfg.Relayer
	if preferred == ([20]byte{}) && e.recs != nil {
		preferred = e.recs.RecommendedRelayer(app)
	}
	plans := make([]deliveryPlan, 0, len(deliveries))
	cursors := make(map[[32]byte]uint64)
	seenProofs := make(map[[32]byte]struct{})
	seenMsgs := make(map[[32]byte]struct{})
	for _, d := range deliveries {
		if d.ProofIndex < 0 || d.ProofIndex >= len(proofs) {
			return nil, fmt.Errorf("%w: proof index %d out of range", ErrInvalidDelivery, d.ProofIndex)
		}
		if d.Msg.Receiver != app {
			return nil, fmt.Errorf("%w: receiver is not the submitting application", ErrInvalidDelivery)
		}
		proof := proofs[d.ProofIndex]
		msgHash := d.Msg.Hash()
		if msgHash != proof.MsgHash {
			return nil, ErrMsgHashMismatch
		}
		// Self-broadcast messages bypassed the shared send path; anyone may
		// land them. Everything else is reserved for the preferred relayer.
		if !proof.SelfBroadcast && preferred != ([20]byte{}) && relayer != preferred {
			return nil, ErrRelayerNotPreferred
		}
		if proof.RevealedSecret != ([32]byte{}) {
			if e.recs == nil || e.recs.RevealedSecret(app, msgHash) != proof.RevealedSecret {
				return nil, fmt.Errorf("%w: message %x", ErrSecretNotRevealed, msgHash[:4])
			}
		}
		proofHash := proof.Hash()
		if _, dup := seenProofs[proofHash]; dup {
			return nil, fmt.Errorf("%w: proof %x repeated in batch", ErrAlreadyDelivered, proofHash[:4])
		}
		seenProofs[proofHash] = struct{}{}
		if _, dup := seenMsgs[msgHash]; dup {
			return nil, fmt.Errorf("%w: message %x repeated in batch", ErrAlreadyDelivered, msgHash[:4])
		}
		seenMsgs[msgHash] = struct{}{}
		if _, ok, err := e.state.DeliveredMsg(proofHash); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("%w: proof %x", ErrAlreadyDelivered, proofHash[:4])
		}
		if _, ok, err := e.state.DeliveredMsgHash(msgHash); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("%w: message %x", ErrAlreadyDelivered, msgHash[:4])
		}

		route := d.Msg.ReceivingRoute()
		routeKey := route.Key(e.library)
		if _, ok, err := e.state.FailedMsg(routeKey, d.Msg.Nonce); err != nil {
			return nil, err
		} else if ok {
			return nil, ErrFailedMsgPending
		}
		if d.Msg.Ordered {
			expected, tracked := cursors[routeKey]
			if !tracked {
				stored, err := e.nonces.NextDeliverableOrdered(route)
				if err != nil {
					return nil, err
				}
				expected = stored
				cursors[routeKey] = stored
			}
			switch {
			case d.Msg.Nonce == expected:
				cursors[routeKey] = expected + 1
			case d.Msg.Nonce < expected:
				// The cursor skipped this nonce when its delivery failed. Once
				// the failure record is consumed without a successful retry,
				// the oracle re-queues the message by committing its proof
				// again; accept it behind the cursor then.
				requeued, err := e.failed.EverRecorded(route, d.Msg.Nonce)
				if err != nil {
					return nil, err
				}
				if !requeued {
					return nil, fmt.Errorf("%w: nonce %d, expected %d", ErrOutOfOrderDelivery, d.Msg.Nonce, expected)
				}
			default:
				return nil, fmt.Errorf("%w: nonce %d, expected %d", ErrOutOfOrderDelivery, d.Msg.Nonce, expected)
			}
		}
		plans = append(plans, deliveryPlan{
			msg:       d.Msg,
			proof:     proof,
			proofHash: proofHash,
			msgHash:   msgHash,
			route:     route,
			routeKey:  routeKey,
		})
	}
	return plans, nil
}

// applyDelivery executes one validated plan. Receiver failures land in the
// failed-message registry; only state I/O errors propagate.
func (e *Engine) applyDelivery(relayer, app [20]byte, cfg *AppConfig, plan *deliveryPlan) (types.DeliveryOutcome, error) {
	outcome := types.DeliveryOutcome{MsgHash: plan.msgHash, ProofHash: plan.proofHash}

	var deliverErr error
	switch {
	case !cfg.DeliverDirectly:
		// Pull mode: the delivery is recorded and surfaced through events; the
		// application fetches the payload itself.
	case cfg.DeliveryGasBudget > 0 && plan.msg.RequiredGas > cfg.DeliveryGasBudget:
		deliverErr = fmt.Errorf("required gas %d exceeds configured budget %d", plan.msg.RequiredGas, cfg.DeliveryGasBudget)
	default:
		receiver, ok := e.resolveReceiver(app)
		if !ok {
			deliverErr = fmt.Errorf("no receiver registered for application")
		} else {
			deliverErr = receiver.Receive(plan.msg.SenderInstanceID, plan.msg.Sender, plan.msg.Nonce, plan.msg.Payload, plan.msg.AdditionalInfo)
		}
	}

	if deliverErr != nil {
		rec, err := e.failed.Record(plan.route, plan.msg.Nonce, failedContext{
			proofHash: plan.proofHash,
			msgHash:   plan.msgHash,
			fee:       cfg.RetryFee,
			relayer:   relayer,
			proof:     plan.proof,
		})
		if err != nil {
			return outcome, err
		}
		if plan.msg.Ordered {
			if err := e.nonces.MarkOrderedConsumed(plan.route, plan.msg.Nonce); err != nil {
				return outcome, err
			}
		}
		outcome.FailureHash = rec.FailureHash
		e.emit(NewMsgFailedEvent(app, plan.msgHash, rec.FailureHash, plan.msg.Nonce, relayer, deliverErr))
		return outcome, nil
	}

	rec := &DeliveredMsg{
		ProofHash:                             plan.proofHash,
		MsgHash:                               plan.msgHash,
		App:                                   app,
		RouteKey:                              plan.routeKey,
		Nonce:                                 plan.msg.Nonce,
		Ordered:                               plan.msg.Ordered,
		Block:                                 e.blockFn(),
		Relayer:                               relayer,
		RecommendedDisputeTime:                plan.proof.RecommendedDisputeTime,
		RecommendedDisputeResolutionExtension: plan.proof.RecommendedDisputeResolutionExtension,
	}
	if err := e.state.PutDeliveredMsg(rec); err != nil {
		return outcome, err
	}
	if err := e.state.PutDeliveredMsgHash(plan.msgHash, plan.proofHash); err != nil {
		return outcome, err
	}
	if plan.msg.Ordered {
		if err := e.nonces.MarkOrderedConsumed(plan.route, plan.msg.Nonce); err != nil {
			return outcome, err
		}
	}
	outcome.Delivered = true
	e.emit(NewMsgDeliveredEvent(app, plan.msgHash, plan.proofHash, plan.msg.Nonce, plan.msg.Ordered, relayer))
	return outcome, nil
}

func (e *Engine) resolveReceiver(app [20]byte) (AppReceiver, bool) {
	if e.receivers == nil {
		return nil, false
	}
	return e.receivers.Receiver(app)
}

// DeliveredMsgRecord returns the delivery record for a proof hash.
func (e *Engine) DeliveredMsgRecord(proofHash [32]byte) (*DeliveredMsg, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	return e.state.DeliveredMsg(proofHash)
}

// GetNonces returns the send counters for a route.
func (e *Engine) GetNonces(route types.Route) (types.Nonces, error) {
	return e.nonces.Get(route)
}

// NextDeliverableOrdered exposes the receiving-side cursor for a route.
func (e *Engine) NextDeliverableOrdered(route types.Route) (uint64, error) {
	return e.nonces.NextDeliverableOrdered(route)
}

// GetCurrentDisputeEpochForApp returns the epoch covering the current block.
func (e *Engine) GetCurrentDisputeEpochForApp(app [20]byte) (*DisputeEpoch, error) {
	cfg, err := e.config(app)
	if err != nil {
		return nil, err
	}
	return e.epochs.Current(app, cfg)
}
