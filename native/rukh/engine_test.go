package rukh

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"earlybird/core/events"
	"earlybird/core/types"
	"earlybird/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	testOracle   = newTestAddress(0x01)
	testAdmin    = newTestAddress(0x02)
	testResolver = newTestAddress(0x03)
	testRelayer  = newTestAddress(0x04)
	testApp      = newTestAddress(0xA1)
	testSender   = bytes.Repeat([]byte{0xEE}, 32)
)

const (
	testSenderInstance = uint64(7)
	testDisputeTime    = uint64(50)
	testDisputeExt     = uint64(100)
)

type transfer struct {
	payer       [20]byte
	beneficiary [20]byte
	token       string
	amount      *big.Int
}

type captureFees struct {
	token      string
	amount     *big.Int
	collectErr error
	transfers  []transfer
}

func (f *captureFees) Estimate(app [20]byte) (string, *big.Int, error) {
	return f.token, new(big.Int).Set(f.amount), nil
}

func (f *captureFees) Collect(payer, beneficiary [20]byte, token string, amount *big.Int) error {
	if f.collectErr != nil {
		return f.collectErr
	}
	f.transfers = append(f.transfers, transfer{payer: payer, beneficiary: beneficiary, token: token, amount: new(big.Int).Set(amount)})
	return nil
}

type stubRecs struct {
	disputeTime uint64
	disputeExt  uint64
	relayer     [20]byte
	secrets     map[[32]byte][32]byte
}

func (r *stubRecs) RecommendedDisputeTime(app [20]byte) uint64                { return r.disputeTime }
func (r *stubRecs) RecommendedDisputeResolutionExtension(app [20]byte) uint64 { return r.disputeExt }
func (r *stubRecs) RecommendedRelayer(app [20]byte) [20]byte                  { return r.relayer }

func (r *stubRecs) RevealedSecret(app [20]byte, msgHash [32]byte) [32]byte {
	return r.secrets[msgHash]
}

type testReceiver struct {
	failWith error
	received []uint64
}

func (r *testReceiver) Receive(senderInstanceID uint64, sender []byte, nonce uint64, payload, additionalInfo []byte) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.received = append(r.received, nonce)
	return nil
}

type receiverMap map[[20]byte]AppReceiver

func (m receiverMap) Receiver(app [20]byte) (AppReceiver, bool) {
	r, ok := m[app]
	return r, ok
}

type captureDisputers struct {
	invalidated [][32]byte
}

func (d *captureDisputers) NotifyInvalidProof(app [20]byte, proofHash [32]byte, disputer [20]byte) {
	d.invalidated = append(d.invalidated, proofHash)
}

type captureEmitter struct {
	emitted []events.Event
}

func (e *captureEmitter) Emit(evt events.Event) { e.emitted = append(e.emitted, evt) }

type testEnv struct {
	engine    *Engine
	send      *SendEngine
	state     *KVState
	block     *uint64
	fees      *captureFees
	receiver  *testReceiver
	recs      *stubRecs
	disputers *captureDisputers
	emitter   *captureEmitter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		state:     NewKVState(storage.NewMemDB()),
		block:     new(uint64),
		fees:      &captureFees{token: "NATIVE", amount: big.NewInt(0)},
		receiver:  &testReceiver{},
		recs:      &stubRecs{disputeTime: testDisputeTime, disputeExt: testDisputeExt},
		disputers: &captureDisputers{},
		emitter:   &captureEmitter{},
	}
	engine := NewEngine()
	engine.SetState(env.state)
	engine.SetEmitter(env.emitter)
	engine.SetFeeCollector(env.fees)
	engine.SetDisputerRegistry(env.disputers)
	engine.SetRecsSource(env.recs)
	engine.SetFeeWallet(newTestAddress(0xFE))
	engine.SetBlockFunc(func() uint64 { return *env.block })
	engine.SetReceiverResolver(receiverMap{testApp: env.receiver})
	env.engine = engine
	env.send = NewSendEngine(engine)

	if err := engine.RegisterApp(testAdmin, testApp, testAppConfig()); err != nil {
		t.Fatalf("register app: %v", err)
	}
	return env
}

func testAppConfig() *AppConfig {
	return &AppConfig{
		Oracle:                   testOracle,
		Relayer:                  testRelayer,
		DisputeResolver:          testResolver,
		Admin:                    testAdmin,
		DisputeEpochLength:       100,
		MaxValidDisputesPerEpoch: 2,
		RetryFee:                 big.NewInt(10),
		FeeToken:                 "NATIVE",
		DeliverDirectly:          true,
		DeliveryGasBudget:        1000,
	}
}

func testMsg(nonce uint64, ordered bool) types.Msg {
	return types.Msg{
		SenderInstanceID: testSenderInstance,
		Sender:           append([]byte(nil), testSender...),
		Receiver:         testApp,
		Nonce:            nonce,
		Ordered:          ordered,
		RequiredGas:      100,
		Payload:          []byte("payload"),
	}
}

func proofFor(msg types.Msg) types.MsgProof {
	return types.MsgProof{
		MsgHash:                               msg.Hash(),
		RecommendedDisputeTime:                testDisputeTime,
		RecommendedDisputeResolutionExtension: testDisputeExt,
		SenderInstanceID:                      msg.SenderInstanceID,
		Sender:                                append([]byte(nil), msg.Sender...),
	}
}

func commitBatch(t *testing.T, env *testEnv, slot uint64, msgs ...types.Msg) []types.MsgProof {
	t.Helper()
	proofs := make([]types.MsgProof, 0, len(msgs))
	for _, m := range msgs {
		proofs = append(proofs, proofFor(m))
	}
	if _, err := env.engine.SubmitMessageProofs(testOracle, testApp, slot, proofs); err != nil {
		t.Fatalf("commit proofs: %v", err)
	}
	return proofs
}

func deliveriesFor(msgs ...types.Msg) []types.Delivery {
	out := make([]types.Delivery, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, types.Delivery{ProofIndex: i, Msg: m})
	}
	return out
}

func TestRegisterAppReplacementRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.RegisterApp(testOracle, testApp, testAppConfig()); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
	if err := env.engine.RegisterApp(testAdmin, testApp, testAppConfig()); err != nil {
		t.Fatalf("admin replacement: %v", err)
	}
}

func TestRegisterAppRejectsInvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	bad := testAppConfig()
	bad.Oracle = [20]byte{}
	if err := env.engine.RegisterApp(testAdmin, newTestAddress(0xB2), bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestUpdateAppConfig(t *testing.T) {
	env := newTestEnv(t)
	next := newTestAddress(0x11)
	update := ConfigUpdate{Kind: ConfigUpdateOracle, Address: next}
	if err := env.engine.UpdateAppConfig(testOracle, testApp, update); !errors.Is(err, ErrUnauthorizedAdmin) {
		t.Fatalf("expected ErrUnauthorizedAdmin, got %v", err)
	}
	if err := env.engine.UpdateAppConfig(testAdmin, testApp, update); err != nil {
		t.Fatalf("update oracle: %v", err)
	}
	if _, err := env.engine.SubmitMessageProofs(testOracle, testApp, 0, nil); !errors.Is(err, ErrUnauthorizedOracle) {
		t.Fatalf("old oracle should be rejected, got %v", err)
	}
	if err := env.engine.UpdateAppConfig(testAdmin, testApp, ConfigUpdate{Kind: 99}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown kind, got %v", err)
	}
}

func TestSubmitMessageProofsRequiresOracle(t *testing.T) {
	env := newTestEnv(t)
	msg := testMsg(0, true)
	if _, err := env.engine.SubmitMessageProofs(testAdmin, testApp, 0, []types.MsgProof{proofFor(msg)}); !errors.Is(err, ErrUnauthorizedOracle) {
		t.Fatalf("expected ErrUnauthorizedOracle, got %v", err)
	}
}

func TestSubmitMessagesUnknownApp(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.SubmitMessages(testRelayer, newTestAddress(0xCC), 0, nil, nil); !errors.Is(err, ErrAppNotConfigured) {
		t.Fatalf("expected ErrAppNotConfigured, got %v", err)
	}
}

func TestSubmitMessagesDeliversBatch(t *testing.T) {
	env := newTestEnv(t)
	m0, m1 := testMsg(0, true), testMsg(1, true)
	proofs := commitBatch(t, env, 0, m0, m1)

	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0, m1))
	if err != nil {
		t.Fatalf("submit messages: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for i, outcome := range outcomes {
		if !outcome.Delivered {
			t.Fatalf("outcome %d not delivered", i)
		}
	}
	if got := env.receiver.received; len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("receiver saw nonces %v", got)
	}
	next, err := env.engine.NextDeliverableOrdered(m0.ReceivingRoute())
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if next != 2 {
		t.Fatalf("cursor = %d, want 2", next)
	}
	rec, ok, err := env.engine.DeliveredMsgRecord(proofs[0].Hash())
	if err != nil || !ok {
		t.Fatalf("delivered record missing: ok=%v err=%v", ok, err)
	}
	if rec.MsgHash != m0.Hash() || rec.Relayer != testRelayer {
		t.Fatalf("delivered record mismatch: %+v", rec)
	}
}

func TestSubmitMessagesRejectsStalePreimage(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	commitBatch(t, env, 0, m0)

	stale := []types.MsgProof{proofFor(testMsg(9, true))}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, stale, nil); !errors.Is(err, ErrCommitmentMismatch) {
		t.Fatalf("expected ErrCommitmentMismatch, got %v", err)
	}
}

func TestSubmitMessagesUninitializedSlot(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 5, nil, nil); !errors.Is(err, ErrSlotUninitialized) {
		t.Fatalf("expected ErrSlotUninitialized, got %v", err)
	}
}

func TestSubmitMessagesMsgHashMismatch(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)

	tampered := m0
	tampered.Payload = []byte("tampered")
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(tampered)); !errors.Is(err, ErrMsgHashMismatch) {
		t.Fatalf("expected ErrMsgHashMismatch, got %v", err)
	}
}

func TestSubmitMessagesOutOfOrderLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)
	m0, m1 := testMsg(0, true), testMsg(1, true)
	proofs := commitBatch(t, env, 0, m0, m1)

	skip := []types.Delivery{{ProofIndex: 1, Msg: m1}}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, skip); !errors.Is(err, ErrOutOfOrderDelivery) {
		t.Fatalf("expected ErrOutOfOrderDelivery, got %v", err)
	}
	next, err := env.engine.NextDeliverableOrdered(m0.ReceivingRoute())
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if next != 0 {
		t.Fatalf("cursor moved to %d on rejected batch", next)
	}
	if _, ok, _ := env.engine.DeliveredMsgRecord(proofs[1].Hash()); ok {
		t.Fatal("rejected delivery left a record")
	}
}

func TestSubmitMessagesRejectsReplay(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0)); !errors.Is(err, ErrAlreadyDelivered) {
		t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
	}
}

func TestSubmitMessagesRejectsIntraBatchDuplicates(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, false)
	proofs := commitBatch(t, env, 0, m0)
	dup := []types.Delivery{{ProofIndex: 0, Msg: m0}, {ProofIndex: 0, Msg: m0}}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, dup); !errors.Is(err, ErrAlreadyDelivered) {
		t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
	}
}

func TestSubmitMessagesWhilePaused(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)
	if err := env.state.SetDeliveryPaused(testApp, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0)); !errors.Is(err, ErrDeliveryPaused) {
		t.Fatalf("expected ErrDeliveryPaused, got %v", err)
	}
}

func TestReceiverFailureRecordsFailureAndSkipsNonce(t *testing.T) {
	env := newTestEnv(t)
	m0, m1 := testMsg(0, true), testMsg(1, true)
	proofs := commitBatch(t, env, 0, m0, m1)

	env.receiver.failWith = errors.New("receiver reverted")
	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, []types.Delivery{{ProofIndex: 0, Msg: m0}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcomes[0].Delivered {
		t.Fatal("failed delivery reported as delivered")
	}
	if outcomes[0].FailureHash == ([32]byte{}) {
		t.Fatal("failure hash unset")
	}
	next, err := env.engine.NextDeliverableOrdered(m0.ReceivingRoute())
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if next != 1 {
		t.Fatalf("cursor = %d after failed-and-skipped, want 1", next)
	}

	// The stream moves on; nonce 1 is deliverable while nonce 0 waits for a
	// paid retry.
	env.receiver.failWith = nil
	outcomes, err = env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, []types.Delivery{{ProofIndex: 1, Msg: m1}})
	if err != nil {
		t.Fatalf("deliver nonce 1: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatal("nonce 1 not delivered")
	}

	// Redelivering the failed nonce through the normal path is blocked.
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, []types.Delivery{{ProofIndex: 0, Msg: m0}}); !errors.Is(err, ErrFailedMsgPending) {
		t.Fatalf("expected ErrFailedMsgPending, got %v", err)
	}
}

func TestGasBudgetExceededCapturesFailure(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	m0.RequiredGas = 5000
	proofs := commitBatch(t, env, 0, m0)

	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcomes[0].Delivered {
		t.Fatal("over-budget delivery reported as delivered")
	}
	if len(env.receiver.received) != 0 {
		t.Fatal("receiver was invoked despite gas budget")
	}
}

func TestPullModeRecordsWithoutReceiver(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateAppConfig(testAdmin, testApp, ConfigUpdate{Kind: ConfigUpdateDeliverDirectly, Flag: false}); err != nil {
		t.Fatalf("switch to pull mode: %v", err)
	}
	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)
	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatal("pull mode delivery not recorded")
	}
	if len(env.receiver.received) != 0 {
		t.Fatal("receiver invoked in pull mode")
	}
}

func TestDeliveryRequiresRevealedSecret(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	secret := [32]byte{0x5E, 0xC2, 0xE7}
	proof := proofFor(m0)
	proof.RevealedSecret = secret
	if _, err := env.engine.SubmitMessageProofs(testOracle, testApp, 0, []types.MsgProof{proof}); err != nil {
		t.Fatalf("commit proofs: %v", err)
	}

	_, err := env.engine.SubmitMessages(testRelayer, testApp, 0, []types.MsgProof{proof}, deliveriesFor(m0))
	if !errors.Is(err, ErrSecretNotRevealed) {
		t.Fatalf("expected ErrSecretNotRevealed, got %v", err)
	}
	if len(env.receiver.received) != 0 {
		t.Fatal("receiver invoked without revealed secret")
	}

	env.recs.secrets = map[[32]byte][32]byte{m0.Hash(): secret}
	outcomes, err := env.engine.SubmitMessages(testRelayer, testApp, 0, []types.MsgProof{proof}, deliveriesFor(m0))
	if err != nil {
		t.Fatalf("submit after reveal: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatal("delivery rejected after secret reveal")
	}
}

func TestDeliveryReservedForConfiguredRelayer(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)

	other := newTestAddress(0x77)
	if _, err := env.engine.SubmitMessages(other, testApp, 0, proofs, deliveriesFor(m0)); !errors.Is(err, ErrRelayerNotPreferred) {
		t.Fatalf("expected ErrRelayerNotPreferred, got %v", err)
	}
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0)); err != nil {
		t.Fatalf("preferred relayer rejected: %v", err)
	}
}

func TestRecommendedRelayerPreferredWhenConfigUnset(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.UpdateAppConfig(testAdmin, testApp, ConfigUpdate{Kind: ConfigUpdateRelayer}); err != nil {
		t.Fatalf("clear configured relayer: %v", err)
	}
	recommended := newTestAddress(0x88)
	env.recs.relayer = recommended

	m0 := testMsg(0, true)
	proofs := commitBatch(t, env, 0, m0)
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0)); !errors.Is(err, ErrRelayerNotPreferred) {
		t.Fatalf("expected ErrRelayerNotPreferred, got %v", err)
	}
	outcomes, err := env.engine.SubmitMessages(recommended, testApp, 0, proofs, deliveriesFor(m0))
	if err != nil {
		t.Fatalf("recommended relayer rejected: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatal("delivery not applied")
	}
}

func TestSelfBroadcastBypassesRelayerPreference(t *testing.T) {
	env := newTestEnv(t)
	m0 := testMsg(0, true)
	proof := proofFor(m0)
	proof.SelfBroadcast = true
	if _, err := env.engine.SubmitMessageProofs(testOracle, testApp, 0, []types.MsgProof{proof}); err != nil {
		t.Fatalf("commit proofs: %v", err)
	}
	outcomes, err := env.engine.SubmitMessages(newTestAddress(0x77), testApp, 0, []types.MsgProof{proof}, deliveriesFor(m0))
	if err != nil {
		t.Fatalf("self-broadcast delivery rejected: %v", err)
	}
	if !outcomes[0].Delivered {
		t.Fatal("self-broadcast message not delivered")
	}
}

func TestBatchSubmissionEmitsSummaryEvent(t *testing.T) {
	env := newTestEnv(t)
	m0, m1 := testMsg(0, true), testMsg(1, true)
	proofs := commitBatch(t, env, 0, m0, m1)
	if _, err := env.engine.SubmitMessages(testRelayer, testApp, 0, proofs, deliveriesFor(m0, m1)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var summary *types.Event
	for _, evt := range env.emitter.emitted {
		if evt.EventType() != EventTypeMsgsSubmitted {
			continue
		}
		summary = evt.(interface{ Event() *types.Event }).Event()
	}
	if summary == nil {
		t.Fatal("no batch summary event emitted")
	}
	if summary.Attributes["msgCount"] != "2" {
		t.Fatalf("msgCount = %q", summary.Attributes["msgCount"])
	}
}
