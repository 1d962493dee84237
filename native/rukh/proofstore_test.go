package rukh

import (
	"errors"
	"testing"

	"earlybird/core/types"
	"earlybird/storage"
)

func storeProofs(nonces ...uint64) []types.MsgProof {
	proofs := make([]types.MsgProof, 0, len(nonces))
	for _, n := range nonces {
		proofs = append(proofs, proofFor(testMsg(n, true)))
	}
	return proofs
}

func TestCommitIsIdempotentForIdenticalBatch(t *testing.T) {
	store := NewAggregateProofStore(NewKVState(storage.NewMemDB()))
	proofs := storeProofs(0, 1)

	first, err := store.Commit(testApp, 0, proofs)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	second, err := store.Commit(testApp, 0, proofs)
	if err != nil {
		t.Fatalf("recommit: %v", err)
	}
	if first != second {
		t.Fatalf("idempotent commit changed hash")
	}
	if _, err := store.Commit(testApp, 0, storeProofs(2)); !errors.Is(err, ErrSlotAlreadyInitialized) {
		t.Fatalf("expected ErrSlotAlreadyInitialized, got %v", err)
	}
}

func TestMergeConcatenatesAndClears(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	store := NewAggregateProofStore(state)
	proofsA, proofsB := storeProofs(0, 1), storeProofs(2)

	if _, err := store.Commit(testApp, 0, proofsA); err != nil {
		t.Fatalf("commit a: %v", err)
	}
	if _, err := store.Commit(testApp, 1, proofsB); err != nil {
		t.Fatalf("commit b: %v", err)
	}
	hash, err := store.Merge(testApp, 0, 1, proofsA, proofsB)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if want := types.AggregateHash(append(append([]types.MsgProof{}, proofsA...), proofsB...)); hash != want {
		t.Fatalf("merged hash mismatch")
	}
	if _, ok, _ := state.Slot(testApp, 1); ok {
		t.Fatal("source slot not cleared after merge")
	}
}

func TestMergeRejectsSelfAndStalePreimage(t *testing.T) {
	store := NewAggregateProofStore(NewKVState(storage.NewMemDB()))
	proofsA, proofsB := storeProofs(0), storeProofs(1)
	if _, err := store.Commit(testApp, 0, proofsA); err != nil {
		t.Fatalf("commit a: %v", err)
	}
	if _, err := store.Commit(testApp, 1, proofsB); err != nil {
		t.Fatalf("commit b: %v", err)
	}
	if _, err := store.Merge(testApp, 0, 0, proofsA, proofsA); !errors.Is(err, ErrInvalidPartition) {
		t.Fatalf("expected ErrInvalidPartition, got %v", err)
	}
	if _, err := store.Merge(testApp, 0, 1, proofsB, proofsB); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch, got %v", err)
	}
}

func TestSplitThenMergeRestoresCommitment(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	store := NewAggregateProofStore(state)
	proofs := storeProofs(0, 1, 2)

	original, err := store.Commit(testApp, 0, proofs)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	keepHash, moveHash, err := store.Split(testApp, 0, proofs, []uint64{0}, []uint64{1, 2}, 1)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if keepHash != types.AggregateHash(proofs[:1]) || moveHash != types.AggregateHash(proofs[1:]) {
		t.Fatal("split hashes do not match partitions")
	}
	merged, err := store.Merge(testApp, 0, 1, proofs[:1], proofs[1:])
	if err != nil {
		t.Fatalf("merge back: %v", err)
	}
	if merged != original {
		t.Fatal("split+merge did not restore the original commitment")
	}
}

func TestSplitRejectsBadPartitions(t *testing.T) {
	store := NewAggregateProofStore(NewKVState(storage.NewMemDB()))
	proofs := storeProofs(0, 1, 2)
	if _, err := store.Commit(testApp, 0, proofs); err != nil {
		t.Fatalf("commit: %v", err)
	}
	cases := []struct {
		name    string
		keep    []uint64
		move    []uint64
		target  uint64
		wantErr error
	}{
		{"same slot", []uint64{0}, []uint64{1, 2}, 0, ErrInvalidPartition},
		{"missing index", []uint64{0}, []uint64{1}, 1, ErrInvalidPartition},
		{"duplicate index", []uint64{0, 1}, []uint64{1}, 1, ErrInvalidPartition},
		{"out of range", []uint64{0, 1}, []uint64{5}, 1, ErrInvalidPartition},
	}
	for _, tc := range cases {
		if _, _, err := store.Split(testApp, 0, proofs, tc.keep, tc.move, tc.target); !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.wantErr)
		}
	}
}

func TestSplitRejectsInitializedTarget(t *testing.T) {
	store := NewAggregateProofStore(NewKVState(storage.NewMemDB()))
	proofs := storeProofs(0, 1)
	if _, err := store.Commit(testApp, 0, proofs); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := store.Commit(testApp, 1, storeProofs(2)); err != nil {
		t.Fatalf("commit target: %v", err)
	}
	if _, _, err := store.Split(testApp, 0, proofs, []uint64{0}, []uint64{1}, 1); !errors.Is(err, ErrSlotAlreadyInitialized) {
		t.Fatalf("expected ErrSlotAlreadyInitialized, got %v", err)
	}
}

func TestTrimRecommitsKeepSubset(t *testing.T) {
	state := NewKVState(storage.NewMemDB())
	store := NewAggregateProofStore(state)
	proofs := storeProofs(0, 1, 2)
	if _, err := store.Commit(testApp, 0, proofs); err != nil {
		t.Fatalf("commit: %v", err)
	}
	hash, err := store.Trim(testApp, 0, proofs, []uint64{0, 1})
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if hash != types.AggregateHash(proofs[:2]) {
		t.Fatal("trimmed hash does not match keep subset")
	}

	// Replaying the identical trim is a no-op; the dropped proof is gone, so
	// the stored commitment already equals the keep subset.
	again, err := store.Trim(testApp, 0, proofs, []uint64{0, 1})
	if err != nil {
		t.Fatalf("replayed trim: %v", err)
	}
	if again != hash {
		t.Fatal("replayed trim changed the commitment")
	}

	// A further trim presents the current preimage, not the original one.
	final, err := store.Trim(testApp, 0, proofs[:2], []uint64{0})
	if err != nil {
		t.Fatalf("second trim: %v", err)
	}
	if final != types.AggregateHash(proofs[:1]) {
		t.Fatal("second trim hash mismatch")
	}

	if _, err := store.Trim(testApp, 0, proofs, []uint64{1, 2}); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch for stale preimage, got %v", err)
	}
}

func TestTrimUninitializedSlot(t *testing.T) {
	store := NewAggregateProofStore(NewKVState(storage.NewMemDB()))
	if _, err := store.Trim(testApp, 3, storeProofs(0), []uint64{0}); !errors.Is(err, ErrSlotUninitialized) {
		t.Fatalf("expected ErrSlotUninitialized, got %v", err)
	}
}
