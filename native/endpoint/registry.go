// Package endpoint is the message-routing boundary between applications and
// the verification libraries they choose. It holds interface references to the
// library modules, never concrete engine types, so libraries with different
// verification schemes plug in behind the same contract.
package endpoint

import (
	"errors"
	"fmt"
	"sync"

	"earlybird/core/types"
	"earlybird/native/rukh"
)

var (
	ErrLibraryNotRegistered = errors.New("endpoint: library not registered")
	ErrAppNotBound          = errors.New("endpoint: application not bound to a library")
	ErrLibraryExists        = errors.New("endpoint: library already registered")
)

// RequiredSendModule is the send capability every library version must expose.
type RequiredSendModule interface {
	SendMessage(caller [20]byte, route types.Route, ordered bool, payload, additionalInfo []byte) (uint64, error)
}

// RequiredReceiveModule is the receive capability every library version must
// expose. Disputing libraries layer their dispute surface on top of this.
type RequiredReceiveModule interface {
	SubmitMessages(relayer, app [20]byte, slotIndex uint64, proofs []types.MsgProof, deliveries []types.Delivery) ([]types.DeliveryOutcome, error)
}

// Library pairs the send and receive modules of one verification scheme.
type Library struct {
	Name    string
	Version uint64
	Send    RequiredSendModule
	Receive RequiredReceiveModule
}

// Registry maps applications to their chosen library and to their receiver
// callback. It forwards sendMessage and deliverMessageToApp calls without
// inspecting payloads.
type Registry struct {
	mu        sync.RWMutex
	libraries map[string]Library
	bindings  map[[20]byte]string
	receivers map[[20]byte]rukh.AppReceiver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		libraries: make(map[string]Library),
		bindings:  make(map[[20]byte]string),
		receivers: make(map[[20]byte]rukh.AppReceiver),
	}
}

// RegisterLibrary adds a library under its name. Names are immutable once
// registered; new behavior ships as a new version under a new name.
func (r *Registry) RegisterLibrary(lib Library) error {
	if lib.Name == "" || lib.Send == nil || lib.Receive == nil {
		return fmt.Errorf("endpoint: incomplete library registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.libraries[lib.Name]; ok {
		return ErrLibraryExists
	}
	r.libraries[lib.Name] = lib
	return nil
}

// BindApp selects the library an application sends and receives through.
func (r *Registry) BindApp(app [20]byte, library string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.libraries[library]; !ok {
		return ErrLibraryNotRegistered
	}
	r.bindings[app] = library
	return nil
}

// GetLibraryID returns the library an application is bound to.
func (r *Registry) GetLibraryID(app [20]byte) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bindings[app]
	return name, ok
}

func (r *Registry) boundLibrary(app [20]byte) (Library, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bindings[app]
	if !ok {
		return Library{}, ErrAppNotBound
	}
	lib, ok := r.libraries[name]
	if !ok {
		return Library{}, ErrLibraryNotRegistered
	}
	return lib, nil
}

// SendMessage forwards an outbound message to the application's library.
func (r *Registry) SendMessage(caller [20]byte, route types.Route, ordered bool, payload, additionalInfo []byte) (uint64, error) {
	lib, err := r.boundLibrary(route.App)
	if err != nil {
		return 0, err
	}
	return lib.Send.SendMessage(caller, route, ordered, payload, additionalInfo)
}

// DeliverMessagesToApp forwards a relayer's delivery batch to the
// application's library.
func (r *Registry) DeliverMessagesToApp(relayer, app [20]byte, slotIndex uint64, proofs []types.MsgProof, deliveries []types.Delivery) ([]types.DeliveryOutcome, error) {
	lib, err := r.boundLibrary(app)
	if err != nil {
		return nil, err
	}
	return lib.Receive.SubmitMessages(relayer, app, slotIndex, proofs, deliveries)
}

// RegisterReceiver installs the delivery callback for an application.
func (r *Registry) RegisterReceiver(app [20]byte, receiver rukh.AppReceiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[app] = receiver
}

// Receiver implements rukh.ReceiverResolver.
func (r *Registry) Receiver(app [20]byte) (rukh.AppReceiver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	receiver, ok := r.receivers[app]
	return receiver, ok
}
