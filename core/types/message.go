package types

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// RouteKind distinguishes the two directions a message channel can take
// relative to the local application.
type RouteKind uint8

const (
	// RouteSending covers app -> remote receiver channels.
	RouteSending RouteKind = iota
	// RouteReceiving covers remote sender -> app channels.
	RouteReceiving
)

// Valid reports whether the kind is one of the two supported directions.
func (k RouteKind) Valid() bool {
	return k == RouteSending || k == RouteReceiving
}

// Route identifies a directed message channel between a local application and
// a counterparty on another chain instance. Routes are created implicitly on
// first use and never deleted; all nonce state hangs off the route key.
type Route struct {
	App                    [20]byte
	CounterpartyInstanceID uint64
	Counterparty           []byte
	Kind                   RouteKind
}

// Key derives the deterministic storage key for the route under the given
// library. Two routes collide only if every identity component matches.
func (r Route) Key(library string) [32]byte {
	kind := []byte{byte(r.Kind)}
	var instance [8]byte
	putUint64(instance[:], r.CounterpartyInstanceID)
	return ethcrypto.Keccak256Hash([]byte(library), r.App[:], instance[:], r.Counterparty, kind)
}

// Nonces tracks the two per-route counters. Ordered counts up from zero,
// unordered counts down from the maximum representable value, so the two
// streams can never collide even when compared numerically.
type Nonces struct {
	Ordered   uint64
	Unordered uint64
}

// MsgProof is the per-message attestation an oracle commits before delivery.
// Immutable once committed; identified by its own hash.
type MsgProof struct {
	MsgHash                               [32]byte
	RecommendedDisputeTime                uint64
	RecommendedDisputeResolutionExtension uint64
	RevealedSecret                        [32]byte
	SenderInstanceID                      uint64
	Sender                                []byte
	SelfBroadcast                         bool
	SourceTxRef                           [32]byte
}

// Hash returns the content address of the proof: the keccak256 of its
// canonical RLP encoding.
func (p *MsgProof) Hash() [32]byte {
	encoded, err := rlp.EncodeToBytes(p)
	if err != nil {
		// All field types are RLP-encodable; an error here indicates memory
		// corruption rather than bad input.
		panic(err)
	}
	return ethcrypto.Keccak256Hash(encoded)
}

// AggregateHash commits to an ordered batch of proofs: the keccak256 of the
// concatenated individual proof hashes. The engine stores only this value and
// requires callers to replay the full preimage for every structural change.
func AggregateHash(proofs []MsgProof) [32]byte {
	buf := make([]byte, 0, len(proofs)*32)
	for i := range proofs {
		h := proofs[i].Hash()
		buf = append(buf, h[:]...)
	}
	return ethcrypto.Keccak256Hash(buf)
}

// Msg carries the full delivery preimage a relayer submits for one message.
type Msg struct {
	SenderInstanceID uint64
	Sender           []byte
	Receiver         [20]byte
	Nonce            uint64
	Ordered          bool
	RequiredGas      uint64
	Payload          []byte
	AdditionalInfo   []byte
}

// Hash computes the deterministic message hash from the delivery tuple. It
// must match the MsgHash inside the committed proof for delivery to proceed.
func (m *Msg) Hash() [32]byte {
	encoded, err := rlp.EncodeToBytes(m)
	if err != nil {
		panic(err)
	}
	return ethcrypto.Keccak256Hash(encoded)
}

// ReceivingRoute returns the route the message consumes on the destination
// instance under the given delivery library.
func (m *Msg) ReceivingRoute() Route {
	return Route{
		App:                    m.Receiver,
		CounterpartyInstanceID: m.SenderInstanceID,
		Counterparty:           append([]byte(nil), m.Sender...),
		Kind:                   RouteReceiving,
	}
}

// Delivery selects one committed proof (by its index in the replayed batch)
// together with the full message preimage to deliver against it.
type Delivery struct {
	ProofIndex int
	Msg        Msg
}

// DeliveryOutcome reports what happened to one delivery in a batch. Receiver
// failures are not call errors; they surface here with the failure hash a
// retry must present.
type DeliveryOutcome struct {
	MsgHash     [32]byte
	ProofHash   [32]byte
	Delivered   bool
	FailureHash [32]byte
}

func putUint64(dst []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}
