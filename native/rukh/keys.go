package rukh

import "encoding/binary"

var (
	configPrefix       = []byte("rukh/config/")
	noncePrefix        = []byte("rukh/nonce/")
	cursorPrefix       = []byte("rukh/cursor/")
	slotPrefix         = []byte("rukh/slot/")
	validityPrefix     = []byte("rukh/validity/")
	deliveredPrefix    = []byte("rukh/delivered/proof/")
	deliveredMsgPrefix = []byte("rukh/delivered/msg/")
	epochPrefix        = []byte("rukh/epoch/")
	pausedPrefix       = []byte("rukh/paused/")
	failedPrefix       = []byte("rukh/failed/")
	failedIndexPrefix  = []byte("rukh/failed/index/")
	bookmarkPrefix     = []byte("rukh/bookmark/")
)

func appKey(prefix []byte, app [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(app))
	copy(buf, prefix)
	copy(buf[len(prefix):], app[:])
	return buf
}

func hashKey(prefix []byte, hash [32]byte) []byte {
	buf := make([]byte, len(prefix)+len(hash))
	copy(buf, prefix)
	copy(buf[len(prefix):], hash[:])
	return buf
}

func slotKey(app [20]byte, index uint64) []byte {
	buf := make([]byte, len(slotPrefix)+len(app)+8)
	copy(buf, slotPrefix)
	copy(buf[len(slotPrefix):], app[:])
	binary.BigEndian.PutUint64(buf[len(slotPrefix)+len(app):], index)
	return buf
}

func failedMsgKey(route [32]byte, nonce uint64) []byte {
	buf := make([]byte, len(failedPrefix)+len(route)+8)
	copy(buf, failedPrefix)
	copy(buf[len(failedPrefix):], route[:])
	binary.BigEndian.PutUint64(buf[len(failedPrefix)+len(route):], nonce)
	return buf
}
