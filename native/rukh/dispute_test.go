package rukh

import (
	"errors"
	"math"
	"testing"

	"earlybird/core/types"
)

// deliverOne commits and delivers a single message, returning its proof hash.
func deliverOne(t *testing.T, env *testEnv, slot uint64, msg types.Msg) [32]byte {
	t.Helper()
	proofs := commitBatch(t, env, slot, msg)
	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, slot, proofs, deliveriesFor(msg))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatalf("message not delivered")
	}
	return proofs[0].Hash()
}

func TestDisputeWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))

	disputer := newTestAddress(0x55)
	*env.block = testDisputeTime // last block of the window
	if err := env.engine.DisputeMsgProof(disputer, proofHash); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	validity, err := env.engine.GetMsgProofValidityObject(proofHash)
	if err != nil {
		t.Fatalf("validity: %v", err)
	}
	if !validity.Disputed || validity.Verdict != VerdictUndecided {
		t.Fatalf("unexpected validity: %+v", validity)
	}
	if validity.EndOfDisputeResolutionBlock != testDisputeExt {
		t.Fatalf("resolution deadline = %d, want %d", validity.EndOfDisputeResolutionBlock, testDisputeExt)
	}
	if err := env.engine.DisputeMsgProof(disputer, proofHash); !errors.Is(err, ErrAlreadyDisputed) {
		t.Fatalf("expected ErrAlreadyDisputed, got %v", err)
	}
}

func TestDisputeWindowClosed(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))

	*env.block = testDisputeTime + 1
	if err := env.engine.DisputeMsgProof(newTestAddress(0x55), proofHash); !errors.Is(err, ErrDisputeWindowClosed) {
		t.Fatalf("expected ErrDisputeWindowClosed, got %v", err)
	}
	verdict, err := env.engine.EffectiveVerdict(proofHash)
	if err != nil {
		t.Fatalf("effective verdict: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("undisputed past window = %v, want valid", verdict)
	}
}

func TestDisputeUndeliveredProof(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.DisputeMsgProof(newTestAddress(0x55), [32]byte{1}); !errors.Is(err, ErrProofNotDelivered) {
		t.Fatalf("expected ErrProofNotDelivered, got %v", err)
	}
}

func TestResolveDisputeValid(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))

	if err := env.engine.DisputeMsgProof(newTestAddress(0x55), proofHash); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if err := env.engine.ResolveDispute(newTestAddress(0x66), proofHash, true); !errors.Is(err, ErrUnauthorizedResolver) {
		t.Fatalf("expected ErrUnauthorizedResolver, got %v", err)
	}
	if err := env.engine.ResolveDispute(testResolver, proofHash, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	verdict, err := env.engine.EffectiveVerdict(proofHash)
	if err != nil {
		t.Fatalf("effective verdict: %v", err)
	}
	if verdict != VerdictValid {
		t.Fatalf("verdict = %v, want valid", verdict)
	}
	if err := env.engine.ResolveDispute(testResolver, proofHash, false); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if err := env.engine.DisputeMsgProof(newTestAddress(0x55), proofHash); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved on re-dispute, got %v", err)
	}
}

func TestResolveUndisputedProof(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))
	if err := env.engine.ResolveDispute(testResolver, proofHash, true); !errors.Is(err, ErrNotDisputed) {
		t.Fatalf("expected ErrNotDisputed, got %v", err)
	}
}

func TestResolutionDeadlineDefaultsToInvalid(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))

	if err := env.engine.DisputeMsgProof(newTestAddress(0x55), proofHash); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	*env.block = testDisputeExt + 1
	if err := env.engine.ResolveDispute(testResolver, proofHash, true); !errors.Is(err, ErrResolutionWindowExpired) {
		t.Fatalf("expected ErrResolutionWindowExpired, got %v", err)
	}
	verdict, err := env.engine.EffectiveVerdict(proofHash)
	if err != nil {
		t.Fatalf("effective verdict: %v", err)
	}
	if verdict != VerdictInvalid {
		t.Fatalf("disputed unresolved past deadline = %v, want invalid", verdict)
	}
}

func TestWrongRecommendationsInvalidateWithoutResolver(t *testing.T) {
	env := newTestEnv(t)
	proofHash := deliverOne(t, env, 0, testMsg(0, true))

	// The recs contract now recommends a different dispute time than the
	// proof carried; the dispute is decided on the spot.
	env.recs.disputeTime = testDisputeTime + 10
	disputer := newTestAddress(0x55)
	if err := env.engine.DisputeMsgProof(disputer, proofHash); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	validity, err := env.engine.GetMsgProofValidityObject(proofHash)
	if err != nil {
		t.Fatalf("validity: %v", err)
	}
	if !validity.FailedFromWrongRecs || validity.Verdict != VerdictInvalid {
		t.Fatalf("unexpected validity: %+v", validity)
	}
	if len(env.disputers.invalidated) != 1 || env.disputers.invalidated[0] != proofHash {
		t.Fatalf("disputer registry not notified: %v", env.disputers.invalidated)
	}
}

func TestCircuitBreakerTripsAndClears(t *testing.T) {
	env := newTestEnv(t)
	disputer := newTestAddress(0x55)

	// Three unordered messages, each invalidated; the configured maximum of
	// two valid disputes per epoch is exceeded on the third.
	for i := 0; i < 3; i++ {
		msg := testMsg(math.MaxUint64-uint64(i), false)
		proofHash := deliverOne(t, env, uint64(i), msg)
		if err := env.engine.DisputeMsgProof(disputer, proofHash); err != nil {
			t.Fatalf("dispute %d: %v", i, err)
		}
		if err := env.engine.ResolveDispute(testResolver, proofHash, false); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		paused, err := env.engine.DeliveryPausedFor(testApp)
		if err != nil {
			t.Fatalf("paused query: %v", err)
		}
		if want := i == 2; paused != want {
			t.Fatalf("after dispute %d paused=%v, want %v", i, paused, want)
		}
	}

	extra := testMsg(math.MaxUint64-10, false)
	proofs := commitBatch(t, env, 10, extra)
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 10, proofs, deliveriesFor(extra)); !errors.Is(err, ErrDeliveryPaused) {
		t.Fatalf("expected ErrDeliveryPaused, got %v", err)
	}

	if err := env.engine.ClearDeliveryPause(testOracle, testApp); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
	if err := env.engine.ClearDeliveryPause(testAdmin, testApp); err != nil {
		t.Fatalf("clear pause: %v", err)
	}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 10, proofs, deliveriesFor(extra)); err != nil {
		t.Fatalf("delivery after resume: %v", err)
	}
}

func TestEffectiveVerdictUnknownProof(t *testing.T) {
	env := newTestEnv(t)
	verdict, err := env.engine.EffectiveVerdict([32]byte{9})
	if err != nil {
		t.Fatalf("effective verdict: %v", err)
	}
	if verdict != VerdictUndecided {
		t.Fatalf("unknown proof verdict = %v, want undecided", verdict)
	}
}
