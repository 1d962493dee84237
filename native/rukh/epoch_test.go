package rukh

import (
	"testing"

	"earlybird/storage"
)

func TestEpochRollsOverAtBoundary(t *testing.T) {
	var block uint64
	state := NewKVState(storage.NewMemDB())
	mgr := NewDisputeEpochManager(state, func() uint64 { return block })
	cfg := testAppConfig()

	epoch, err := mgr.Current(testApp, cfg)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if epoch.Start != 0 || epoch.End != 100 {
		t.Fatalf("initial epoch [%d,%d), want [0,100)", epoch.Start, epoch.End)
	}

	block = 99
	epoch, err = mgr.Current(testApp, cfg)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if epoch.Start != 0 {
		t.Fatalf("epoch rolled over early at block 99")
	}

	block = 100
	epoch, err = mgr.Current(testApp, cfg)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if epoch.Start != 100 || epoch.End != 200 {
		t.Fatalf("rolled epoch [%d,%d), want [100,200)", epoch.Start, epoch.End)
	}
}

func TestRolloverResetsDisputeCount(t *testing.T) {
	var block uint64
	state := NewKVState(storage.NewMemDB())
	mgr := NewDisputeEpochManager(state, func() uint64 { return block })
	cfg := testAppConfig()

	for i := 0; i < 2; i++ {
		if _, tripped, err := mgr.RecordValidDispute(testApp, cfg); err != nil || tripped {
			t.Fatalf("dispute %d: tripped=%v err=%v", i, tripped, err)
		}
	}
	count, tripped, err := mgr.RecordValidDispute(testApp, cfg)
	if err != nil {
		t.Fatalf("third dispute: %v", err)
	}
	if count != 3 || !tripped {
		t.Fatalf("count=%d tripped=%v, want 3/true", count, tripped)
	}

	block = 150
	count, tripped, err = mgr.RecordValidDispute(testApp, cfg)
	if err != nil {
		t.Fatalf("dispute in next epoch: %v", err)
	}
	if count != 1 || tripped {
		t.Fatalf("next epoch count=%d tripped=%v, want 1/false", count, tripped)
	}
}
