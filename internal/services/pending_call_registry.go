package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
)

// ErrPendingCallAbandoned is the rejection of an abandoned pending call
var ErrPendingCallAbandoned = errors.New("pending call abandoned")

// LedgerEventError rejects a pending call whose transaction produced an error notification
type LedgerEventError struct {
	Notification *models.ErrorNotification
}

func (e *LedgerEventError) Error() string {
	return "ledger transaction " + e.Notification.TransactionHash + " failed: " + e.Notification.Message
}

// PendingCall is a single resolution handle keyed by a transaction hash
type PendingCall struct {
	TransactionHash string

	once   sync.Once
	done   chan struct{}
	result models.Notification
	err    error
}

func newPendingCall(hash string) *PendingCall {
	return &PendingCall{TransactionHash: hash, done: make(chan struct{})}
}

func (p *PendingCall) settle(n models.Notification, err error) {
	p.once.Do(func() {
		p.result = n
		p.err = err
		close(p.done)
	})
}

// Done is closed once the call is resolved or rejected
func (p *PendingCall) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call settles or ctx is done. On ctx expiry the call
// stays registered and may still settle later.
func (p *PendingCall) Wait(ctx context.Context) (models.Notification, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PendingCallRegistry correlates submitted ledger transactions with the
// notifications they eventually produce. Entries are removed when settled;
// a caller that never waits must Abandon its entry.
type PendingCallRegistry struct {
	pending map[string]*PendingCall
	mu      sync.Mutex
}

// NewPendingCallRegistry creates a new PendingCallRegistry
func NewPendingCallRegistry() *PendingCallRegistry {
	return &PendingCallRegistry{pending: make(map[string]*PendingCall)}
}

func pendingKey(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// Register returns the handle of hash, creating it when absent
func (r *PendingCallRegistry) Register(hash string) *PendingCall {
	key := pendingKey(hash)

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[key]; ok {
		return p
	}
	p := newPendingCall(hash)
	r.pending[key] = p
	metrics.PendingCalls.Set(float64(len(r.pending)))
	return p
}

// Resolve settles hash with n. No-op when hash is not registered.
func (r *PendingCallRegistry) Resolve(hash string, n models.Notification) {
	if p := r.take(hash); p != nil {
		p.settle(n, nil)
	}
}

// Reject settles hash with err. No-op when hash is not registered.
func (r *PendingCallRegistry) Reject(hash string, err error) {
	if p := r.take(hash); p != nil {
		p.settle(nil, err)
	}
}

// Abandon drops hash, rejecting a waiter with ErrPendingCallAbandoned
func (r *PendingCallRegistry) Abandon(hash string) bool {
	p := r.take(hash)
	if p == nil {
		return false
	}
	p.settle(nil, ErrPendingCallAbandoned)
	return true
}

// Len returns the number of unsettled calls
func (r *PendingCallRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *PendingCallRegistry) take(hash string) *PendingCall {
	key := pendingKey(hash)

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[key]
	if !ok {
		return nil
	}
	delete(r.pending, key)
	metrics.PendingCalls.Set(float64(len(r.pending)))
	return p
}

// HandleNotification settles the call matching the notification's transaction hash
func (r *PendingCallRegistry) HandleNotification(n models.Notification) {
	hash := n.CorrelationHash()
	if hash == "" {
		return
	}
	switch v := n.(type) {
	case *models.ErrorNotification:
		r.Reject(hash, &LedgerEventError{Notification: v})
	case *models.ContractNotification:
		r.Resolve(hash, v)
	}
}

// Run consumes notifications until ctx is done or the channel is closed
func (r *PendingCallRegistry) Run(ctx context.Context, notifications <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			r.HandleNotification(n)
		}
	}
}
