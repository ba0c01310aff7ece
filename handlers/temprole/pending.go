package temprole

import (
	"role-keeper/tasks/temprole"
	"role-keeper/utils/clock"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	ErrPendingNotFound = errors.New("confirmation request not found or expired")
	ErrNotInvoker      = errors.New("only the invoking moderator can answer this confirmation")
)

// PendingRequest is a /temp invocation waiting for the moderator to press
// Confirm or Cancel.
type PendingRequest struct {
	Token       string
	InvokerID   string
	Interaction *discordgo.Interaction
	Request     temprole.IssueRequest
	CreatedAt   time.Time
}

type pendingEntry struct {
	req   PendingRequest
	timer *clock.Timer
}

// PendingRequests holds unanswered confirmations. Each one is dropped after
// the timeout and handed to onExpire.
type PendingRequests struct {
	mu       sync.Mutex
	clock    clock.Clock
	timeout  time.Duration
	items    map[string]*pendingEntry
	onExpire func(PendingRequest)
}

func NewPendingRequests(clk clock.Clock, timeout time.Duration, onExpire func(PendingRequest)) *PendingRequests {
	if onExpire == nil {
		onExpire = func(PendingRequest) {}
	}
	return &PendingRequests{
		clock:    clk,
		timeout:  timeout,
		items:    make(map[string]*pendingEntry),
		onExpire: onExpire,
	}
}

// Add stores req under a fresh token and returns the token.
func (p *PendingRequests) Add(req PendingRequest) string {
	req.Token = uuid.NewString()
	req.CreatedAt = p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	entry := &pendingEntry{req: req}
	token := req.Token
	entry.timer = p.clock.AfterFunc(p.timeout, func() { p.expire(token) })
	p.items[token] = entry
	return token
}

// Take removes and returns the request for token if userID is the invoker.
// A different user gets ErrNotInvoker and the request stays pending.
func (p *PendingRequests) Take(token, userID string) (PendingRequest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.items[token]
	if !ok {
		return PendingRequest{}, ErrPendingNotFound
	}
	if entry.req.InvokerID != userID {
		return PendingRequest{}, ErrNotInvoker
	}
	delete(p.items, token)
	entry.timer.Stop()
	return entry.req, nil
}

// Discard drops a request without calling onExpire.
func (p *PendingRequests) Discard(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.items[token]; ok {
		entry.timer.Stop()
		delete(p.items, token)
	}
}

func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *PendingRequests) expire(token string) {
	p.mu.Lock()
	entry, ok := p.items[token]
	if ok {
		delete(p.items, token)
	}
	p.mu.Unlock()

	if ok {
		p.onExpire(entry.req)
	}
}
