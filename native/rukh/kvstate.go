package rukh

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"

	"earlybird/core/types"
	"earlybird/storage"
)

// KVState is the production State implementation backed by a flat key-value
// database, with RLP-encoded records under the prefixes in keys.go.
type KVState struct {
	db storage.Database
}

// NewKVState wraps the supplied database.
func NewKVState(db storage.Database) *KVState {
	return &KVState{db: db}
}

func (s *KVState) get(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *KVState) put(key []byte, value interface{}) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, raw)
}

func (s *KVState) AppConfig(app [20]byte) (*AppConfig, bool, error) {
	cfg := new(AppConfig)
	ok, err := s.get(appKey(configPrefix, app), cfg)
	if !ok || err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *KVState) PutAppConfig(app [20]byte, cfg *AppConfig) error {
	sanitized, err := SanitizeConfig(cfg)
	if err != nil {
		return err
	}
	return s.put(appKey(configPrefix, app), sanitized)
}

func (s *KVState) Nonces(route [32]byte) (*types.Nonces, bool, error) {
	n := new(types.Nonces)
	ok, err := s.get(hashKey(noncePrefix, route), n)
	if !ok || err != nil {
		return nil, false, err
	}
	return n, true, nil
}

func (s *KVState) PutNonces(route [32]byte, n *types.Nonces) error {
	return s.put(hashKey(noncePrefix, route), n)
}

func (s *KVState) DeliveryCursor(route [32]byte) (uint64, bool, error) {
	var next uint64
	ok, err := s.get(hashKey(cursorPrefix, route), &next)
	if !ok || err != nil {
		return 0, false, err
	}
	return next, true, nil
}

func (s *KVState) PutDeliveryCursor(route [32]byte, next uint64) error {
	return s.put(hashKey(cursorPrefix, route), next)
}

func (s *KVState) Slot(app [20]byte, index uint64) (*AggregateSlot, bool, error) {
	slot := new(AggregateSlot)
	ok, err := s.get(slotKey(app, index), slot)
	if !ok || err != nil {
		return nil, false, err
	}
	return slot, true, nil
}

func (s *KVState) PutSlot(app [20]byte, index uint64, slot *AggregateSlot) error {
	return s.put(slotKey(app, index), slot)
}

func (s *KVState) ClearSlot(app [20]byte, index uint64) error {
	return s.db.Delete(slotKey(app, index))
}

func (s *KVState) Validity(proofHash [32]byte) (*MsgProofValidity, bool, error) {
	v := new(MsgProofValidity)
	ok, err := s.get(hashKey(validityPrefix, proofHash), v)
	if !ok || err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *KVState) PutValidity(proofHash [32]byte, v *MsgProofValidity) error {
	return s.put(hashKey(validityPrefix, proofHash), v)
}

func (s *KVState) DeliveredMsg(proofHash [32]byte) (*DeliveredMsg, bool, error) {
	rec := new(DeliveredMsg)
	ok, err := s.get(hashKey(deliveredPrefix, proofHash), rec)
	if !ok || err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *KVState) PutDeliveredMsg(rec *DeliveredMsg) error {
	return s.put(hashKey(deliveredPrefix, rec.ProofHash), rec)
}

func (s *KVState) DeliveredMsgHash(msgHash [32]byte) ([32]byte, bool, error) {
	var proofHash [32]byte
	raw, err := s.db.Get(hashKey(deliveredMsgPrefix, msgHash))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return proofHash, false, nil
	}
	if err != nil {
		return proofHash, false, err
	}
	copy(proofHash[:], raw)
	return proofHash, true, nil
}

func (s *KVState) PutDeliveredMsgHash(msgHash, proofHash [32]byte) error {
	return s.db.Put(hashKey(deliveredMsgPrefix, msgHash), proofHash[:])
}

func (s *KVState) DisputeEpoch(app [20]byte) (*DisputeEpoch, bool, error) {
	epoch := new(DisputeEpoch)
	ok, err := s.get(appKey(epochPrefix, app), epoch)
	if !ok || err != nil {
		return nil, false, err
	}
	return epoch, true, nil
}

func (s *KVState) PutDisputeEpoch(app [20]byte, epoch *DisputeEpoch) error {
	return s.put(appKey(epochPrefix, app), epoch)
}

func (s *KVState) DeliveryPaused(app [20]byte) (bool, error) {
	var paused bool
	ok, err := s.get(appKey(pausedPrefix, app), &paused)
	if !ok || err != nil {
		return false, err
	}
	return paused, nil
}

func (s *KVState) SetDeliveryPaused(app [20]byte, paused bool) error {
	return s.put(appKey(pausedPrefix, app), paused)
}

func (s *KVState) FailedMsg(route [32]byte, nonce uint64) (*FailedMsg, bool, error) {
	rec := new(FailedMsg)
	ok, err := s.get(failedMsgKey(route, nonce), rec)
	if !ok || err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *KVState) PutFailedMsg(route [32]byte, nonce uint64, rec *FailedMsg) error {
	return s.put(failedMsgKey(route, nonce), rec)
}

func (s *KVState) DeleteFailedMsg(route [32]byte, nonce uint64) error {
	return s.db.Delete(failedMsgKey(route, nonce))
}

func (s *KVState) FailedMsgIndex(route [32]byte) ([]uint64, error) {
	var index []uint64
	if _, err := s.get(hashKey(failedIndexPrefix, route), &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (s *KVState) AppendFailedMsgIndex(route [32]byte, nonce uint64) (uint64, error) {
	index, err := s.FailedMsgIndex(route)
	if err != nil {
		return 0, err
	}
	index = append(index, nonce)
	if err := s.put(hashKey(failedIndexPrefix, route), index); err != nil {
		return 0, err
	}
	return uint64(len(index) - 1), nil
}

func (s *KVState) Bookmark(msgHash [32]byte) (*FeeBookmark, bool, error) {
	b := new(FeeBookmark)
	ok, err := s.get(hashKey(bookmarkPrefix, msgHash), b)
	if !ok || err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *KVState) PutBookmark(msgHash [32]byte, b *FeeBookmark) error {
	return s.put(hashKey(bookmarkPrefix, msgHash), b)
}

func (s *KVState) DeleteBookmark(msgHash [32]byte) error {
	return s.db.Delete(hashKey(bookmarkPrefix, msgHash))
}
