package rukh

import (
	"math/big"

	"earlybird/core/types"
)

// FeeBookmarkLedger lets an application defer the fee obligation for a
// delivered message. Bookmarking snapshots the live fee estimate; settlement
// later pays exactly the stored amount regardless of fee drift. Bookmarks do
// not expire.
type FeeBookmarkLedger struct {
	state State
}

// NewFeeBookmarkLedger wraps the supplied state backend.
func NewFeeBookmarkLedger(state State) *FeeBookmarkLedger {
	return &FeeBookmarkLedger{state: state}
}

// Put stores a bookmark for a message hash. Re-bookmarking the same hash is a
// no-op returning the original snapshot.
func (l *FeeBookmarkLedger) Put(msgHash [32]byte, app [20]byte, token string, amount *big.Int) (*FeeBookmark, error) {
	if l.state == nil {
		return nil, ErrNilState
	}
	existing, ok, err := l.state.Bookmark(msgHash)
	if err != nil {
		return nil, err
	}
	if ok && existing.Valid {
		return existing.Clone(), nil
	}
	amt := big.NewInt(0)
	if amount != nil {
		amt = new(big.Int).Set(amount)
	}
	bookmark := &FeeBookmark{App: app, Token: token, Amount: amt, Valid: true}
	if err := l.state.PutBookmark(msgHash, bookmark); err != nil {
		return nil, err
	}
	return bookmark.Clone(), nil
}

// Get returns the bookmark for a message hash.
func (l *FeeBookmarkLedger) Get(msgHash [32]byte) (*FeeBookmark, bool, error) {
	if l.state == nil {
		return nil, false, ErrNilState
	}
	b, ok, err := l.state.Bookmark(msgHash)
	if err != nil || !ok {
		return nil, ok, err
	}
	return b.Clone(), true, nil
}

// Clear consumes the bookmark after settlement.
func (l *FeeBookmarkLedger) Clear(msgHash [32]byte) error {
	if l.state == nil {
		return ErrNilState
	}
	return l.state.DeleteBookmark(msgHash)
}

// BookmarkFeesForDeliveredMessage fixes the fee owed for a delivered message
// at the current estimate. The message hash is computed from the full delivery
// tuple; the message must actually have been delivered.
func (e *Engine) BookmarkFeesForDeliveredMessage(msg types.Msg) (*FeeBookmark, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	if e.fees == nil {
		return nil, ErrNilFeeCollector
	}
	msgHash := msg.Hash()
	if _, ok, err := e.state.DeliveredMsgHash(msgHash); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrProofNotDelivered
	}
	token, amount, err := e.fees.Estimate(msg.Receiver)
	if err != nil {
		return nil, err
	}
	bookmark, err := e.bookmarks.Put(msgHash, msg.Receiver, token, amount)
	if err != nil {
		return nil, err
	}
	e.emit(NewFeesBookmarkedEvent(msg.Receiver, msgHash, bookmark.Token, bookmark.Amount))
	return bookmark, nil
}

// PayBookmarkedFees settles exactly the stored amount and clears the bookmark.
func (e *Engine) PayBookmarkedFees(payer [20]byte, msgHash [32]byte) error {
	if e.state == nil {
		return ErrNilState
	}
	bookmark, ok, err := e.bookmarks.Get(msgHash)
	if err != nil {
		return err
	}
	if !ok || !bookmark.Valid {
		return ErrNoBookmarkFound
	}
	if bookmark.Amount.Sign() > 0 {
		if e.fees == nil {
			return ErrNilFeeCollector
		}
		if err := e.fees.Collect(payer, e.feeWallet, bookmark.Token, bookmark.Amount); err != nil {
			return err
		}
	}
	if err := e.bookmarks.Clear(msgHash); err != nil {
		return err
	}
	e.emit(NewFeesPaidEvent(bookmark.App, msgHash, bookmark.Token, bookmark.Amount, payer))
	return nil
}

// GetBookmark returns the stored bookmark for a message hash.
func (e *Engine) GetBookmark(msgHash [32]byte) (*FeeBookmark, bool, error) {
	return e.bookmarks.Get(msgHash)
}
