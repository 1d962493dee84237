package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"earlybird/core/types"
	"earlybird/native/rukh"
)

type rpcHandler func(params []json.RawMessage) (interface{}, error)

func (s *Server) methods() map[string]rpcHandler {
	return map[string]rpcHandler{
		"rukh_submitMessageProofs":             s.handleSubmitMessageProofs,
		"rukh_mergeSlots":                      s.handleMergeSlots,
		"rukh_splitSlot":                       s.handleSplitSlot,
		"rukh_trimSlot":                        s.handleTrimSlot,
		"rukh_submitMessages":                  s.handleSubmitMessages,
		"rukh_disputeMsgProof":                 s.handleDisputeMsgProof,
		"rukh_resolveDispute":                  s.handleResolveDispute,
		"rukh_retryDeliveryForFailedMessage":   s.handleRetryFailedMessage,
		"rukh_bookmarkFeesForDeliveredMessage": s.handleBookmarkFees,
		"rukh_payBookmarkedFees":               s.handlePayBookmarkedFees,
		"rukh_getMsgProofValidityObject":       s.handleGetValidity,
		"rukh_getCurrentDisputeEpochForApp":    s.handleGetEpoch,
		"rukh_getNonces":                       s.handleGetNonces,
		"rukh_listFailedMessages":              s.handleListFailedMessages,
		"rukh_getBookmark":                     s.handleGetBookmark,
		"rukh_registerApp":                     s.handleRegisterApp,
		"rukh_updateAppConfig":                 s.handleUpdateAppConfig,
		"rukh_clearDeliveryPause":              s.handleClearDeliveryPause,
		"endpoint_sendMessage":                 s.handleSendMessage,
		"endpoint_bindApp":                     s.handleBindApp,
		"endpoint_getLibraryId":                s.handleGetLibraryID,
	}
}

// --- wire DTOs ---

type routeParam struct {
	App                    string `json:"app"`
	CounterpartyInstanceID uint64 `json:"counterpartyInstanceId"`
	Counterparty           string `json:"counterparty"`
	Kind                   string `json:"kind"`
}

func (p routeParam) route() (types.Route, error) {
	app, err := parseAddress(p.App)
	if err != nil {
		return types.Route{}, err
	}
	counterparty, err := parseBytes(p.Counterparty)
	if err != nil {
		return types.Route{}, err
	}
	var kind types.RouteKind
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case "sending":
		kind = types.RouteSending
	case "receiving":
		kind = types.RouteReceiving
	default:
		return types.Route{}, fmt.Errorf("%w: route kind must be sending or receiving", errBadParams)
	}
	return types.Route{
		App:                    app,
		CounterpartyInstanceID: p.CounterpartyInstanceID,
		Counterparty:           counterparty,
		Kind:                   kind,
	}, nil
}

type proofParam struct {
	MsgHash                               string `json:"msgHash"`
	RecommendedDisputeTime                uint64 `json:"recommendedDisputeTime"`
	RecommendedDisputeResolutionExtension uint64 `json:"recommendedDisputeResolutionExtension"`
	RevealedSecret                        string `json:"revealedSecret"`
	SenderInstanceID                      uint64 `json:"senderInstanceId"`
	Sender                                string `json:"sender"`
	SelfBroadcast                         bool   `json:"selfBroadcast"`
	SourceTxRef                           string `json:"sourceTxRef"`
}

func (p proofParam) proof() (types.MsgProof, error) {
	msgHash, err := parseHash(p.MsgHash)
	if err != nil {
		return types.MsgProof{}, err
	}
	secret, err := parseHash(p.RevealedSecret)
	if err != nil {
		return types.MsgProof{}, err
	}
	txRef, err := parseHash(p.SourceTxRef)
	if err != nil {
		return types.MsgProof{}, err
	}
	sender, err := parseBytes(p.Sender)
	if err != nil {
		return types.MsgProof{}, err
	}
	return types.MsgProof{
		MsgHash:                               msgHash,
		RecommendedDisputeTime:                p.RecommendedDisputeTime,
		RecommendedDisputeResolutionExtension: p.RecommendedDisputeResolutionExtension,
		RevealedSecret:                        secret,
		SenderInstanceID:                      p.SenderInstanceID,
		Sender:                                sender,
		SelfBroadcast:                         p.SelfBroadcast,
		SourceTxRef:                           txRef,
	}, nil
}

func parseProofs(params []proofParam) ([]types.MsgProof, error) {
	proofs := make([]types.MsgProof, 0, len(params))
	for _, p := range params {
		proof, err := p.proof()
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}
	return proofs, nil
}

type msgParam struct {
	SenderInstanceID uint64 `json:"senderInstanceId"`
	Sender           string `json:"sender"`
	Receiver         string `json:"receiver"`
	Nonce            uint64 `json:"nonce"`
	Ordered          bool   `json:"ordered"`
	RequiredGas      uint64 `json:"requiredGas"`
	Payload          string `json:"payload"`
	AdditionalInfo   string `json:"additionalInfo"`
}

func (p msgParam) msg() (types.Msg, error) {
	sender, err := parseBytes(p.Sender)
	if err != nil {
		return types.Msg{}, err
	}
	receiver, err := parseAddress(p.Receiver)
	if err != nil {
		return types.Msg{}, err
	}
	payload, err := parseBytes(p.Payload)
	if err != nil {
		return types.Msg{}, err
	}
	var additionalInfo []byte
	if strings.TrimSpace(p.AdditionalInfo) != "" {
		additionalInfo, err = parseBytes(p.AdditionalInfo)
		if err != nil {
			return types.Msg{}, err
		}
	}
	return types.Msg{
		SenderInstanceID: p.SenderInstanceID,
		Sender:           sender,
		Receiver:         receiver,
		Nonce:            p.Nonce,
		Ordered:          p.Ordered,
		RequiredGas:      p.RequiredGas,
		Payload:          payload,
		AdditionalInfo:   additionalInfo,
	}, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: expected non-negative decimal amount", errBadParams)
	}
	return amount, nil
}

type outcomeResult struct {
	MsgHash     string `json:"msgHash"`
	ProofHash   string `json:"proofHash"`
	Delivered   bool   `json:"delivered"`
	FailureHash string `json:"failureHash,omitempty"`
}

func outcomeResults(outcomes []types.DeliveryOutcome) []outcomeResult {
	results := make([]outcomeResult, 0, len(outcomes))
	for _, o := range outcomes {
		res := outcomeResult{
			MsgHash:   encodeHash(o.MsgHash),
			ProofHash: encodeHash(o.ProofHash),
			Delivered: o.Delivered,
		}
		if !o.Delivered {
			res.FailureHash = encodeHash(o.FailureHash)
		}
		results = append(results, res)
	}
	return results
}

// --- proof store ---

func (s *Server) handleSubmitMessageProofs(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller    string       `json:"caller"`
		App       string       `json:"app"`
		SlotIndex uint64       `json:"slotIndex"`
		Proofs    []proofParam `json:"proofs"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	proofs, err := parseProofs(req.Proofs)
	if err != nil {
		return nil, err
	}
	hash, err := s.engine.SubmitMessageProofs(caller, app, req.SlotIndex, proofs)
	if err != nil {
		return nil, err
	}
	return map[string]string{"aggregateHash": encodeHash(hash)}, nil
}

func (s *Server) handleMergeSlots(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller  string       `json:"caller"`
		App     string       `json:"app"`
		SlotA   uint64       `json:"slotA"`
		SlotB   uint64       `json:"slotB"`
		ProofsA []proofParam `json:"proofsA"`
		ProofsB []proofParam `json:"proofsB"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	proofsA, err := parseProofs(req.ProofsA)
	if err != nil {
		return nil, err
	}
	proofsB, err := parseProofs(req.ProofsB)
	if err != nil {
		return nil, err
	}
	hash, err := s.engine.MergeSlots(caller, app, req.SlotA, req.SlotB, proofsA, proofsB)
	if err != nil {
		return nil, err
	}
	return map[string]string{"aggregateHash": encodeHash(hash)}, nil
}

func (s *Server) handleSplitSlot(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller  string       `json:"caller"`
		App     string       `json:"app"`
		Slot    uint64       `json:"slot"`
		Proofs  []proofParam `json:"proofs"`
		KeepIdx []uint64     `json:"keepIdx"`
		MoveIdx []uint64     `json:"moveIdx"`
		NewSlot uint64       `json:"newSlot"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	proofs, err := parseProofs(req.Proofs)
	if err != nil {
		return nil, err
	}
	keepHash, moveHash, err := s.engine.SplitSlot(caller, app, req.Slot, proofs, req.KeepIdx, req.MoveIdx, req.NewSlot)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"keepHash": encodeHash(keepHash),
		"moveHash": encodeHash(moveHash),
	}, nil
}

func (s *Server) handleTrimSlot(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller  string       `json:"caller"`
		App     string       `json:"app"`
		Slot    uint64       `json:"slot"`
		Proofs  []proofParam `json:"proofs"`
		KeepIdx []uint64     `json:"keepIdx"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	proofs, err := parseProofs(req.Proofs)
	if err != nil {
		return nil, err
	}
	hash, err := s.engine.TrimSlot(caller, app, req.Slot, proofs, req.KeepIdx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"aggregateHash": encodeHash(hash)}, nil
}

// --- delivery ---

func (s *Server) handleSubmitMessages(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Relayer    string       `json:"relayer"`
		App        string       `json:"app"`
		SlotIndex  uint64       `json:"slotIndex"`
		Proofs     []proofParam `json:"proofs"`
		Deliveries []struct {
			ProofIndex int      `json:"proofIndex"`
			Msg        msgParam `json:"msg"`
		} `json:"deliveries"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	relayer, err := parseAddress(req.Relayer)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	proofs, err := parseProofs(req.Proofs)
	if err != nil {
		return nil, err
	}
	deliveries := make([]types.Delivery, 0, len(req.Deliveries))
	for _, d := range req.Deliveries {
		msg, err := d.Msg.msg()
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, types.Delivery{ProofIndex: d.ProofIndex, Msg: msg})
	}
	outcomes, err := s.registry.DeliverMessagesToApp(relayer, app, req.SlotIndex, proofs, deliveries)
	if err != nil {
		return nil, err
	}
	return outcomeResults(outcomes), nil
}

func (s *Server) handleRetryFailedMessage(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller  string   `json:"caller"`
		Msg     msgParam `json:"msg"`
		Payment string   `json:"payment"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	msg, err := req.Msg.msg()
	if err != nil {
		return nil, err
	}
	payment, err := parseAmount(req.Payment)
	if err != nil {
		return nil, err
	}
	delivered, err := s.engine.RetryDeliveryForFailedMessage(caller, msg, payment)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"delivered": delivered}, nil
}

// --- disputes ---

func (s *Server) handleDisputeMsgProof(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller    string `json:"caller"`
		ProofHash string `json:"proofHash"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	proofHash, err := parseHash(req.ProofHash)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DisputeMsgProof(caller, proofHash); err != nil {
		return nil, err
	}
	return map[string]bool{"disputed": true}, nil
}

func (s *Server) handleResolveDispute(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller     string `json:"caller"`
		ProofHash  string `json:"proofHash"`
		ProofValid bool   `json:"proofValid"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	proofHash, err := parseHash(req.ProofHash)
	if err != nil {
		return nil, err
	}
	if err := s.engine.ResolveDispute(caller, proofHash, req.ProofValid); err != nil {
		return nil, err
	}
	return map[string]bool{"resolved": true}, nil
}

func (s *Server) handleGetValidity(params []json.RawMessage) (interface{}, error) {
	var req struct {
		ProofHash string `json:"proofHash"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	proofHash, err := parseHash(req.ProofHash)
	if err != nil {
		return nil, err
	}
	validity, err := s.engine.GetMsgProofValidityObject(proofHash)
	if err != nil {
		return nil, err
	}
	effective, err := s.engine.EffectiveVerdict(proofHash)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"failedFromWrongRecs":         validity.FailedFromWrongRecs,
		"disputed":                    validity.Disputed,
		"verdict":                     validity.Verdict.String(),
		"effectiveVerdict":            effective.String(),
		"endOfDisputeResolutionBlock": validity.EndOfDisputeResolutionBlock,
	}, nil
}

func (s *Server) handleGetEpoch(params []json.RawMessage) (interface{}, error) {
	var req struct {
		App string `json:"app"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	epoch, err := s.engine.GetCurrentDisputeEpochForApp(app)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{
		"start":             epoch.Start,
		"end":               epoch.End,
		"validDisputeCount": epoch.ValidDisputeCount,
	}, nil
}

// --- ledgers ---

func (s *Server) handleGetNonces(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Route routeParam `json:"route"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	route, err := req.Route.route()
	if err != nil {
		return nil, err
	}
	nonces, err := s.engine.GetNonces(route)
	if err != nil {
		return nil, err
	}
	next, err := s.engine.NextDeliverableOrdered(route)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{
		"ordered":                nonces.Ordered,
		"unordered":              nonces.Unordered,
		"nextDeliverableOrdered": next,
	}, nil
}

func (s *Server) handleListFailedMessages(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Route routeParam `json:"route"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	route, err := req.Route.route()
	if err != nil {
		return nil, err
	}
	nonces, err := s.engine.ListFailedMsgNonces(route)
	if err != nil {
		return nil, err
	}
	type failedResult struct {
		Nonce       uint64 `json:"nonce"`
		FailureHash string `json:"failureHash"`
		Fee         string `json:"fee"`
		Relayer     string `json:"relayer"`
		Pending     bool   `json:"pending"`
	}
	results := make([]failedResult, 0, len(nonces))
	for _, nonce := range nonces {
		rec, ok, err := s.engine.GetFailedMsg(route, nonce)
		if err != nil {
			return nil, err
		}
		if !ok {
			results = append(results, failedResult{Nonce: nonce})
			continue
		}
		results = append(results, failedResult{
			Nonce:       nonce,
			FailureHash: encodeHash(rec.FailureHash),
			Fee:         rec.Fee.String(),
			Relayer:     encodeBytes(rec.Relayer[:]),
			Pending:     true,
		})
	}
	return results, nil
}

// --- fees ---

func (s *Server) handleBookmarkFees(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Msg msgParam `json:"msg"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	msg, err := req.Msg.msg()
	if err != nil {
		return nil, err
	}
	bookmark, err := s.engine.BookmarkFeesForDeliveredMessage(msg)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"token":  bookmark.Token,
		"amount": bookmark.Amount.String(),
	}, nil
}

func (s *Server) handlePayBookmarkedFees(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Payer   string `json:"payer"`
		MsgHash string `json:"msgHash"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	payer, err := parseAddress(req.Payer)
	if err != nil {
		return nil, err
	}
	msgHash, err := parseHash(req.MsgHash)
	if err != nil {
		return nil, err
	}
	if err := s.engine.PayBookmarkedFees(payer, msgHash); err != nil {
		return nil, err
	}
	return map[string]bool{"paid": true}, nil
}

func (s *Server) handleGetBookmark(params []json.RawMessage) (interface{}, error) {
	var req struct {
		MsgHash string `json:"msgHash"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	msgHash, err := parseHash(req.MsgHash)
	if err != nil {
		return nil, err
	}
	bookmark, ok, err := s.engine.GetBookmark(msgHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rukh.ErrNoBookmarkFound
	}
	return map[string]string{
		"token":  bookmark.Token,
		"amount": bookmark.Amount.String(),
	}, nil
}

// --- configuration ---

type configParam struct {
	Oracle                   string `json:"oracle"`
	Relayer                  string `json:"relayer"`
	DisputeResolver          string `json:"disputeResolver"`
	Admin                    string `json:"admin"`
	DisputeEpochLength       uint64 `json:"disputeEpochLength"`
	MaxValidDisputesPerEpoch uint64 `json:"maxValidDisputesPerEpoch"`
	RetryFee                 string `json:"retryFee"`
	FeeToken                 string `json:"feeToken"`
	DeliverDirectly          bool   `json:"deliverDirectly"`
	DeliveryGasBudget        uint64 `json:"deliveryGasBudget"`
}

func (p configParam) config() (*rukh.AppConfig, error) {
	oracle, err := parseAddress(p.Oracle)
	if err != nil {
		return nil, err
	}
	admin, err := parseAddress(p.Admin)
	if err != nil {
		return nil, err
	}
	cfg := &rukh.AppConfig{
		Oracle:                   oracle,
		Admin:                    admin,
		DisputeEpochLength:       p.DisputeEpochLength,
		MaxValidDisputesPerEpoch: p.MaxValidDisputesPerEpoch,
		FeeToken:                 p.FeeToken,
		DeliverDirectly:          p.DeliverDirectly,
		DeliveryGasBudget:        p.DeliveryGasBudget,
	}
	if strings.TrimSpace(p.Relayer) != "" {
		if cfg.Relayer, err = parseAddress(p.Relayer); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(p.DisputeResolver) != "" {
		if cfg.DisputeResolver, err = parseAddress(p.DisputeResolver); err != nil {
			return nil, err
		}
	}
	if cfg.RetryFee, err = parseAmount(p.RetryFee); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Server) handleRegisterApp(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller string      `json:"caller"`
		App    string      `json:"app"`
		Config configParam `json:"config"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	cfg, err := req.Config.config()
	if err != nil {
		return nil, err
	}
	if err := s.engine.RegisterApp(caller, app, cfg); err != nil {
		return nil, err
	}
	return map[string]bool{"registered": true}, nil
}

func (s *Server) handleUpdateAppConfig(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller  string `json:"caller"`
		App     string `json:"app"`
		Kind    uint8  `json:"kind"`
		Address string `json:"address"`
		Number  uint64 `json:"number"`
		Amount  string `json:"amount"`
		Token   string `json:"token"`
		Flag    bool   `json:"flag"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	update := rukh.ConfigUpdate{
		Kind:   rukh.ConfigUpdateKind(req.Kind),
		Number: req.Number,
		Token:  req.Token,
		Flag:   req.Flag,
	}
	if strings.TrimSpace(req.Address) != "" {
		if update.Address, err = parseAddress(req.Address); err != nil {
			return nil, err
		}
	}
	if update.Amount, err = parseAmount(req.Amount); err != nil {
		return nil, err
	}
	if err := s.engine.UpdateAppConfig(caller, app, update); err != nil {
		return nil, err
	}
	return map[string]bool{"updated": true}, nil
}

func (s *Server) handleClearDeliveryPause(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller string `json:"caller"`
		App    string `json:"app"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	if err := s.engine.ClearDeliveryPause(caller, app); err != nil {
		return nil, err
	}
	return map[string]bool{"cleared": true}, nil
}

// --- endpoint ---

func (s *Server) handleSendMessage(params []json.RawMessage) (interface{}, error) {
	var req struct {
		Caller         string     `json:"caller"`
		Route          routeParam `json:"route"`
		Ordered        bool       `json:"ordered"`
		Payload        string     `json:"payload"`
		AdditionalInfo string     `json:"additionalInfo"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return nil, err
	}
	route, err := req.Route.route()
	if err != nil {
		return nil, err
	}
	payload, err := parseBytes(req.Payload)
	if err != nil {
		return nil, err
	}
	var additionalInfo []byte
	if strings.TrimSpace(req.AdditionalInfo) != "" {
		if additionalInfo, err = parseBytes(req.AdditionalInfo); err != nil {
			return nil, err
		}
	}
	nonce, err := s.registry.SendMessage(caller, route, req.Ordered, payload, additionalInfo)
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"nonce": nonce}, nil
}

func (s *Server) handleBindApp(params []json.RawMessage) (interface{}, error) {
	var req struct {
		App     string `json:"app"`
		Library string `json:"library"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	if err := s.registry.BindApp(app, req.Library); err != nil {
		return nil, err
	}
	return map[string]bool{"bound": true}, nil
}

func (s *Server) handleGetLibraryID(params []json.RawMessage) (interface{}, error) {
	var req struct {
		App string `json:"app"`
	}
	if err := decodeParams(params, &req); err != nil {
		return nil, err
	}
	app, err := parseAddress(req.App)
	if err != nil {
		return nil, err
	}
	library, ok := s.registry.GetLibraryID(app)
	if !ok {
		return nil, fmt.Errorf("application not bound to a library")
	}
	return map[string]string{"libraryId": library}, nil
}
