package rukh

import (
	"fmt"

	"earlybird/core/types"
)

// AggregateProofStore is the content-addressed, slot-indexed store of
// committed proof batches. Only the 32-byte commitment per slot is durable;
// every structural operation replays the full preimage and recomputes the
// hash before touching storage. A stale preimage fails the hash check instead
// of silently corrupting state.
type AggregateProofStore struct {
	state State
}

// NewAggregateProofStore wraps the supplied state backend.
func NewAggregateProofStore(state State) *AggregateProofStore {
	return &AggregateProofStore{state: state}
}

func (s *AggregateProofStore) slot(app [20]byte, index uint64) (*AggregateSlot, error) {
	if s.state == nil {
		return nil, ErrNilState
	}
	slot, ok, err := s.state.Slot(app, index)
	if err != nil {
		return nil, err
	}
	if !ok || !slot.Initialized {
		return nil, fmt.Errorf("%w: slot %d", ErrSlotUninitialized, index)
	}
	return slot, nil
}

func (s *AggregateProofStore) verify(app [20]byte, index uint64, proofs []types.MsgProof) (*AggregateSlot, error) {
	slot, err := s.slot(app, index)
	if err != nil {
		return nil, err
	}
	if types.AggregateHash(proofs) != slot.Hash {
		return nil, fmt.Errorf("%w: slot %d", ErrCommitmentMismatch, index)
	}
	return slot, nil
}

// Commit stores the aggregate hash of the proof batch into the slot. An
// already-initialized slot only accepts a commit of the identical batch,
// which is a no-op; anything else requires an explicit trim or merge first.
func (s *AggregateProofStore) Commit(app [20]byte, index uint64, proofs []types.MsgProof) ([32]byte, error) {
	if s.state == nil {
		return [32]byte{}, ErrNilState
	}
	hash := types.AggregateHash(proofs)
	existing, ok, err := s.state.Slot(app, index)
	if err != nil {
		return [32]byte{}, err
	}
	if ok && existing.Initialized {
		if existing.Hash == hash {
			return hash, nil
		}
		return [32]byte{}, fmt.Errorf("%w: slot %d", ErrSlotAlreadyInitialized, index)
	}
	if err := s.state.PutSlot(app, index, &AggregateSlot{Hash: hash, Initialized: true}); err != nil {
		return [32]byte{}, err
	}
	return hash, nil
}

// Merge concatenates the batches of two slots into slotA and clears slotB.
// Both preimages must match their stored commitments.
func (s *AggregateProofStore) Merge(app [20]byte, slotA, slotB uint64, proofsA, proofsB []types.MsgProof) ([32]byte, error) {
	if slotA == slotB {
		return [32]byte{}, fmt.Errorf("%w: merge of slot %d into itself", ErrInvalidPartition, slotA)
	}
	if _, err := s.verify(app, slotA, proofsA); err != nil {
		return [32]byte{}, err
	}
	if _, err := s.verify(app, slotB, proofsB); err != nil {
		return [32]byte{}, err
	}
	merged := make([]types.MsgProof, 0, len(proofsA)+len(proofsB))
	merged = append(merged, proofsA...)
	merged = append(merged, proofsB...)
	hash := types.AggregateHash(merged)
	if err := s.state.PutSlot(app, slotA, &AggregateSlot{Hash: hash, Initialized: true}); err != nil {
		return [32]byte{}, err
	}
	if err := s.state.ClearSlot(app, slotB); err != nil {
		return [32]byte{}, err
	}
	return hash, nil
}

// Split partitions a verified batch into two commitments: the keep set
// overwrites the source slot, the move set lands in an uninitialized slot.
// keepIdx and moveIdx together must cover every index exactly once.
func (s *AggregateProofStore) Split(app [20]byte, index uint64, proofs []types.MsgProof, keepIdx, moveIdx []uint64, newIndex uint64) ([32]byte, [32]byte, error) {
	if index == newIndex {
		return [32]byte{}, [32]byte{}, fmt.Errorf("%w: split targets source slot %d", ErrInvalidPartition, index)
	}
	if _, err := s.verify(app, index, proofs); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if err := checkPartition(len(proofs), keepIdx, moveIdx); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	target, ok, err := s.state.Slot(app, newIndex)
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if ok && target.Initialized {
		return [32]byte{}, [32]byte{}, fmt.Errorf("%w: slot %d", ErrSlotAlreadyInitialized, newIndex)
	}
	keepHash := types.AggregateHash(selectProofs(proofs, keepIdx))
	moveHash := types.AggregateHash(selectProofs(proofs, moveIdx))
	if err := s.state.PutSlot(app, index, &AggregateSlot{Hash: keepHash, Initialized: true}); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	if err := s.state.PutSlot(app, newIndex, &AggregateSlot{Hash: moveHash, Initialized: true}); err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	return keepHash, moveHash, nil
}

// Trim re-commits the slot to the keep subset of a verified batch. Dropped
// proofs permanently lose delivery eligibility unless re-committed elsewhere.
// Trimming again with the same keep set is a no-op producing the same hash.
func (s *AggregateProofStore) Trim(app [20]byte, index uint64, proofs []types.MsgProof, keepIdx []uint64) ([32]byte, error) {
	slot, err := s.slot(app, index)
	if err != nil {
		return [32]byte{}, err
	}
	if err := checkIndices(len(proofs), keepIdx); err != nil {
		return [32]byte{}, err
	}
	kept := selectProofs(proofs, keepIdx)
	keptHash := types.AggregateHash(kept)
	if slot.Hash == keptHash {
		return keptHash, nil
	}
	if types.AggregateHash(proofs) != slot.Hash {
		return [32]byte{}, fmt.Errorf("%w: slot %d", ErrCommitmentMismatch, index)
	}
	if err := s.state.PutSlot(app, index, &AggregateSlot{Hash: keptHash, Initialized: true}); err != nil {
		return [32]byte{}, err
	}
	return keptHash, nil
}

func selectProofs(proofs []types.MsgProof, idx []uint64) []types.MsgProof {
	out := make([]types.MsgProof, 0, len(idx))
	for _, i := range idx {
		out = append(out, proofs[i])
	}
	return out
}

func checkIndices(n int, idx []uint64) error {
	seen := make(map[uint64]struct{}, len(idx))
	for _, i := range idx {
		if i >= uint64(n) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidPartition, i)
		}
		if _, dup := seen[i]; dup {
			return fmt.Errorf("%w: duplicate index %d", ErrInvalidPartition, i)
		}
		seen[i] = struct{}{}
	}
	return nil
}

func checkPartition(n int, keepIdx, moveIdx []uint64) error {
	if len(keepIdx)+len(moveIdx) != n {
		return fmt.Errorf("%w: %d indices for %d proofs", ErrInvalidPartition, len(keepIdx)+len(moveIdx), n)
	}
	seen := make(map[uint64]struct{}, n)
	for _, set := range [][]uint64{keepIdx, moveIdx} {
		for _, i := range set {
			if i >= uint64(n) {
				return fmt.Errorf("%w: index %d out of range", ErrInvalidPartition, i)
			}
			if _, dup := seen[i]; dup {
				return fmt.Errorf("%w: duplicate index %d", ErrInvalidPartition, i)
			}
			seen[i] = struct{}{}
		}
	}
	return nil
}
