package dialog

import (
	"context"
	"sync"

	"portraitd/pkg/types"
)

// Level is a user notification severity.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ModuleName prefixes every user notification.
const ModuleName = "Runware AI Image Generator"

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// UI is everything the pipeline asks of the user. Choose returns ok=false
// when nothing was selected. Confirm returns the answer to a yes/no question.
type UI interface {
	Notifier
	Choose(ctx context.Context, candidates []types.ImageResult) (index int, ok bool, err error)
	Confirm(ctx context.Context, title, message, image string, defaultYes bool) (bool, error)
}

type promptKind int

const (
	promptChoice promptKind = iota + 1
	promptConfirm
)

type answer struct {
	index int
	yes   bool
	ok    bool
}

type pending struct {
	kind promptKind
	n    int
	ch   chan answer
}

// Prompts parks one pipeline question until an answer arrives from another
// request. Closing resolves any pending question to "nothing selected".
type Prompts struct {
	mu     sync.Mutex
	cur    *pending
	closed bool
}

func NewPrompts() *Prompts { return &Prompts{} }

// AwaitChoice registers a pick among n candidates, calls announce, and blocks
// until Choose, Close or ctx resolves it.
func (p *Prompts) AwaitChoice(ctx context.Context, n int, announce func()) (int, bool, error) {
	a, err := p.await(ctx, &pending{kind: promptChoice, n: n}, announce)
	if err != nil || !a.ok {
		return -1, false, err
	}
	return a.index, true, nil
}

// AwaitConfirm registers a yes/no question, calls announce, and blocks until
// Confirm, Close or ctx resolves it. Close answers no.
func (p *Prompts) AwaitConfirm(ctx context.Context, announce func()) (bool, error) {
	a, err := p.await(ctx, &pending{kind: promptConfirm}, announce)
	if err != nil {
		return false, err
	}
	return a.ok && a.yes, nil
}

func (p *Prompts) await(ctx context.Context, q *pending, announce func()) (answer, error) {
	q.ch = make(chan answer, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return answer{}, nil
	}
	p.cur = q
	p.mu.Unlock()
	defer p.clear(q)

	if announce != nil {
		announce()
	}
	select {
	case a := <-q.ch:
		return a, nil
	case <-ctx.Done():
		return answer{}, ctx.Err()
	}
}

func (p *Prompts) clear(q *pending) {
	p.mu.Lock()
	if p.cur == q {
		p.cur = nil
	}
	p.mu.Unlock()
}

// Choose answers the pending pick. A negative index cancels it.
func (p *Prompts) Choose(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.cur
	if q == nil || q.kind != promptChoice {
		return ErrNoPendingPrompt
	}
	if index >= q.n {
		return ErrInvalidChoice
	}
	p.cur = nil
	q.ch <- answer{index: index, ok: index >= 0}
	return nil
}

// Confirm answers the pending yes/no question.
func (p *Prompts) Confirm(yes bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.cur
	if q == nil || q.kind != promptConfirm {
		return ErrNoPendingPrompt
	}
	p.cur = nil
	q.ch <- answer{yes: yes, ok: true}
	return nil
}

// Pending reports whether a question is waiting.
func (p *Prompts) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Close resolves the pending question, if any, and makes later ones resolve
// immediately.
func (p *Prompts) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if q := p.cur; q != nil {
		p.cur = nil
		q.ch <- answer{index: -1}
	}
}
