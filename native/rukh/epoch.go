package rukh

// DisputeEpochManager tracks the sliding per-application dispute window. An
// epoch is a fixed span of blocks from the application's config; the valid
// dispute count resets when a new epoch begins. Exceeding the configured
// maximum is interpreted as a likely oracle compromise and trips the circuit
// breaker; only an administrator clears it.
type DisputeEpochManager struct {
	state   State
	blockFn func() uint64
}

// NewDisputeEpochManager creates a manager reading block height from blockFn.
func NewDisputeEpochManager(state State, blockFn func() uint64) *DisputeEpochManager {
	return &DisputeEpochManager{state: state, blockFn: blockFn}
}

// Current returns the epoch covering the current block, rolling over (and
// persisting the rollover) if the stored epoch has ended.
func (m *DisputeEpochManager) Current(app [20]byte, cfg *AppConfig) (*DisputeEpoch, error) {
	if m.state == nil {
		return nil, ErrNilState
	}
	block := m.blockFn()
	epoch, ok, err := m.state.DisputeEpoch(app)
	if err != nil {
		return nil, err
	}
	if !ok || block >= epoch.End {
		epoch = &DisputeEpoch{Start: block, End: block + cfg.DisputeEpochLength}
		if err := m.state.PutDisputeEpoch(app, epoch); err != nil {
			return nil, err
		}
	}
	return epoch, nil
}

// RecordValidDispute increments the current epoch's valid dispute count and
// reports whether the count now exceeds the application's maximum. The caller
// is responsible for acting on a tripped breaker.
func (m *DisputeEpochManager) RecordValidDispute(app [20]byte, cfg *AppConfig) (uint64, bool, error) {
	epoch, err := m.Current(app, cfg)
	if err != nil {
		return 0, false, err
	}
	epoch.ValidDisputeCount++
	if err := m.state.PutDisputeEpoch(app, epoch); err != nil {
		return 0, false, err
	}
	return epoch.ValidDisputeCount, epoch.ValidDisputeCount > cfg.MaxValidDisputesPerEpoch, nil
}
