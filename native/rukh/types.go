package rukh

import (
	"fmt"
	"math/big"
	"strings"
)

// LibraryName is the identifier the routing registry uses for this library.
const LibraryName = "rukh"

// AppConfig carries the per-application parameters consulted at the start of
// every engine operation. It is always fetched from state, never cached.
type AppConfig struct {
	Oracle                   [20]byte
	Relayer                  [20]byte
	DisputeResolver          [20]byte
	Admin                    [20]byte
	DisputeEpochLength       uint64
	MaxValidDisputesPerEpoch uint64
	RetryFee                 *big.Int
	FeeToken                 string
	DeliverDirectly          bool
	DeliveryGasBudget        uint64
}

// Clone returns a deep copy so callers can mutate without aliasing stored
// configuration.
func (c *AppConfig) Clone() *AppConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.RetryFee != nil {
		clone.RetryFee = new(big.Int).Set(c.RetryFee)
	} else {
		clone.RetryFee = big.NewInt(0)
	}
	return &clone
}

// SanitizeConfig validates a configuration and returns a canonical clone.
func SanitizeConfig(c *AppConfig) (*AppConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	clone := c.Clone()
	if clone.Oracle == ([20]byte{}) {
		return nil, fmt.Errorf("%w: oracle unset", ErrInvalidConfig)
	}
	if clone.Admin == ([20]byte{}) {
		return nil, fmt.Errorf("%w: admin unset", ErrInvalidConfig)
	}
	if clone.DisputeEpochLength == 0 {
		return nil, fmt.Errorf("%w: dispute epoch length must be positive", ErrInvalidConfig)
	}
	if clone.RetryFee.Sign() < 0 {
		return nil, fmt.Errorf("%w: retry fee must be non-negative", ErrInvalidConfig)
	}
	clone.FeeToken = strings.ToUpper(strings.TrimSpace(clone.FeeToken))
	if clone.FeeToken == "" {
		return nil, fmt.Errorf("%w: fee token unset", ErrInvalidConfig)
	}
	return clone, nil
}

// ConfigUpdateKind tags the field a ConfigUpdate mutates.
type ConfigUpdateKind uint8

const (
	ConfigUpdateOracle ConfigUpdateKind = iota + 1
	ConfigUpdateRelayer
	ConfigUpdateDisputeResolver
	ConfigUpdateAdmin
	ConfigUpdateDisputeEpochLength
	ConfigUpdateMaxValidDisputes
	ConfigUpdateRetryFee
	ConfigUpdateFeeToken
	ConfigUpdateDeliverDirectly
	ConfigUpdateDeliveryGasBudget
)

// ConfigUpdate is a kind-tagged update dispatched through a single entry
// point. Only the field matching the kind is consulted.
type ConfigUpdate struct {
	Kind    ConfigUpdateKind
	Address [20]byte
	Number  uint64
	Amount  *big.Int
	Token   string
	Flag    bool
}

// AggregateSlot is the stored commitment for one (application, slot index)
// pair. The engine never stores the proof array itself, only its hash.
type AggregateSlot struct {
	Hash        [32]byte
	Initialized bool
}

// DisputeVerdict records the resolver's judgement of a disputed proof.
type DisputeVerdict uint8

const (
	VerdictUndecided DisputeVerdict = iota
	VerdictValid
	VerdictInvalid
)

func (v DisputeVerdict) String() string {
	switch v {
	case VerdictValid:
		return "valid"
	case VerdictInvalid:
		return "invalid"
	default:
		return "undecided"
	}
}

// MsgProofValidity tracks the dispute lifecycle of a single proof hash.
// Created lazily on first dispute; terminal once a verdict is recorded.
type MsgProofValidity struct {
	FailedFromWrongRecs         bool
	Disputed                    bool
	Verdict                     DisputeVerdict
	EndOfDisputeResolutionBlock uint64
	Disputer                    [20]byte
}

// Clone returns a copy safe for callers to hold.
func (v *MsgProofValidity) Clone() *MsgProofValidity {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// DisputeEpoch is the sliding per-application window bounding how many valid
// disputes the configured oracle may incur before the circuit breaker trips.
type DisputeEpoch struct {
	Start             uint64
	End               uint64
	ValidDisputeCount uint64
}

// DeliveredMsg is the durable record of one accepted delivery, keyed by proof
// hash. It carries the recommended dispute parameters copied out of the proof
// so the dispute clock can run without the proof preimage.
type DeliveredMsg struct {
	ProofHash                             [32]byte
	MsgHash                               [32]byte
	App                                   [20]byte
	RouteKey                              [32]byte
	Nonce                                 uint64
	Ordered                               bool
	Block                                 uint64
	Relayer                               [20]byte
	RecommendedDisputeTime                uint64
	RecommendedDisputeResolutionExtension uint64
}

// FailedMsg records one delivery attempt that reverted, keyed by (route,
// nonce). The recorded relayer is the beneficiary of the retry fee.
type FailedMsg struct {
	FailureHash                           [32]byte
	ProofHash                             [32]byte
	MsgHash                               [32]byte
	Fee                                   *big.Int
	Relayer                               [20]byte
	Index                                 uint64
	RecommendedDisputeTime                uint64
	RecommendedDisputeResolutionExtension uint64
}

// Clone returns a deep copy of the record.
func (f *FailedMsg) Clone() *FailedMsg {
	if f == nil {
		return nil
	}
	clone := *f
	if f.Fee != nil {
		clone.Fee = new(big.Int).Set(f.Fee)
	} else {
		clone.Fee = big.NewInt(0)
	}
	return &clone
}

// FeeBookmark fixes a fee obligation for one delivered message at the moment
// of bookmarking. Bookmarks do not expire; they are cleared on payment.
type FeeBookmark struct {
	App    [20]byte
	Token  string
	Amount *big.Int
	Valid  bool
}

// Clone returns a deep copy of the bookmark.
func (b *FeeBookmark) Clone() *FeeBookmark {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Amount != nil {
		clone.Amount = new(big.Int).Set(b.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
