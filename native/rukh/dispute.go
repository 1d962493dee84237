package rukh

import "fmt"

// Dispute lifecycle: Undisputed -> Disputed -> {Valid, Invalid}, terminal.
// Deadlines are pure functions of stored blocks versus the current block; no
// timers run. The defaults are deliberately asymmetric: a proof nobody
// disputed in time counts as valid, a disputed proof nobody resolved in time
// counts as invalid. Resolver silence is costly to the oracle, not to the
// disputer.

// DisputeMsgProof opens a dispute on a delivered proof. Any caller may dispute
// before the proof's recommended dispute time has elapsed since delivery. A
// proof whose recommended parameters diverge from the recs contract fails
// immediately without a resolver verdict.
func (e *Engine) DisputeMsgProof(caller [20]byte, proofHash [32]byte) error {
	if e.state == nil {
		return ErrNilState
	}
	delivered, ok, err := e.state.DeliveredMsg(proofHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProofNotDelivered
	}
	cfg, err := e.config(delivered.App)
	if err != nil {
		return err
	}
	existing, ok, err := e.state.Validity(proofHash)
	if err != nil {
		return err
	}
	if ok {
		if existing.Verdict != VerdictUndecided {
			return ErrAlreadyResolved
		}
		if existing.Disputed {
			return ErrAlreadyDisputed
		}
	}
	block := e.blockFn()
	if block > delivered.Block+delivered.RecommendedDisputeTime {
		return ErrDisputeWindowClosed
	}

	validity := &MsgProofValidity{
		Disputed:                    true,
		Verdict:                     VerdictUndecided,
		EndOfDisputeResolutionBlock: delivered.Block + delivered.RecommendedDisputeResolutionExtension,
		Disputer:                    caller,
	}

	// Wrong recommended values are objectively checkable against the recs
	// contract, so they short-circuit the resolver entirely.
	if e.recs != nil {
		wrongTime := delivered.RecommendedDisputeTime != e.recs.RecommendedDisputeTime(delivered.App)
		wrongExt := delivered.RecommendedDisputeResolutionExtension != e.recs.RecommendedDisputeResolutionExtension(delivered.App)
		if wrongTime || wrongExt {
			validity.FailedFromWrongRecs = true
			validity.Verdict = VerdictInvalid
			if err := e.state.PutValidity(proofHash, validity); err != nil {
				return err
			}
			e.emit(NewDisputeOpenedEvent(delivered.App, proofHash, caller, validity.EndOfDisputeResolutionBlock))
			return e.finishInvalidation(delivered.App, proofHash, caller, cfg)
		}
	}

	if err := e.state.PutValidity(proofHash, validity); err != nil {
		return err
	}
	e.emit(NewDisputeOpenedEvent(delivered.App, proofHash, caller, validity.EndOfDisputeResolutionBlock))
	return nil
}

// ResolveDispute records the verdict for a disputed proof. Only the
// application's configured dispute resolver may submit, and only before the
// resolution deadline; after the deadline the proof is implicitly invalid.
func (e *Engine) ResolveDispute(caller [20]byte, proofHash [32]byte, proofValid bool) error {
	if e.state == nil {
		return ErrNilState
	}
	delivered, ok, err := e.state.DeliveredMsg(proofHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProofNotDelivered
	}
	cfg, err := e.config(delivered.App)
	if err != nil {
		return err
	}
	if caller != cfg.DisputeResolver {
		return ErrUnauthorizedResolver
	}
	validity, ok, err := e.state.Validity(proofHash)
	if err != nil {
		return err
	}
	if !ok || !validity.Disputed {
		return ErrNotDisputed
	}
	if validity.Verdict != VerdictUndecided {
		return ErrAlreadyResolved
	}
	if e.blockFn() > validity.EndOfDisputeResolutionBlock {
		return fmt.Errorf("%w: deadline block %d", ErrResolutionWindowExpired, validity.EndOfDisputeResolutionBlock)
	}
	if proofValid {
		validity.Verdict = VerdictValid
	} else {
		validity.Verdict = VerdictInvalid
	}
	if err := e.state.PutValidity(proofHash, validity); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(delivered.App, proofHash, validity.Verdict, caller))
	if validity.Verdict == VerdictInvalid {
		return e.finishInvalidation(delivered.App, proofHash, validity.Disputer, cfg)
	}
	return nil
}

// finishInvalidation runs the shared bookkeeping for an upheld dispute: the
// epoch counter, the circuit breaker, and the external disputers registry.
func (e *Engine) finishInvalidation(app [20]byte, proofHash [32]byte, disputer [20]byte, cfg *AppConfig) error {
	count, tripped, err := e.epochs.RecordValidDispute(app, cfg)
	if err != nil {
		return err
	}
	if tripped {
		if err := e.state.SetDeliveryPaused(app, true); err != nil {
			return err
		}
		e.emit(NewDeliveryPausedEvent(app, count))
	}
	if e.disputers != nil {
		e.disputers.NotifyInvalidProof(app, proofHash, disputer)
	}
	return nil
}

// GetMsgProofValidityObject returns the stored dispute record for a proof. A
// proof that has never been disputed yields a zero record.
func (e *Engine) GetMsgProofValidityObject(proofHash [32]byte) (*MsgProofValidity, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	validity, ok, err := e.state.Validity(proofHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &MsgProofValidity{}, nil
	}
	return validity.Clone(), nil
}

// EffectiveVerdict evaluates the policy defaults against the current block:
// undisputed-in-time is valid, disputed-but-unresolved-in-time is invalid.
func (e *Engine) EffectiveVerdict(proofHash [32]byte) (DisputeVerdict, error) {
	return e.effectiveVerdictFor(proofHash)
}

func (e *Engine) effectiveVerdictFor(proofHash [32]byte) (DisputeVerdict, error) {
	if e.state == nil {
		return VerdictUndecided, ErrNilState
	}
	block := e.blockFn()
	validity, ok, err := e.state.Validity(proofHash)
	if err != nil {
		return VerdictUndecided, err
	}
	if ok && validity.Disputed {
		if validity.Verdict != VerdictUndecided {
			return validity.Verdict, nil
		}
		if block > validity.EndOfDisputeResolutionBlock {
			return VerdictInvalid, nil
		}
		return VerdictUndecided, nil
	}
	delivered, ok, err := e.state.DeliveredMsg(proofHash)
	if err != nil {
		return VerdictUndecided, err
	}
	if !ok {
		return VerdictUndecided, nil
	}
	if block > delivered.Block+delivered.RecommendedDisputeTime {
		return VerdictValid, nil
	}
	return VerdictUndecided, nil
}
