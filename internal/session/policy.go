package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pandeptwidyaop/app-chooser/internal/directory"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

var (
	ErrSessionClosed        = errors.New("no active robot session")
	ErrBusy                 = errors.New("another start or stop is in progress")
	ErrNoPendingConfirm     = errors.New("no start is waiting for confirmation")
	ErrStaleCompletion      = errors.New("completion belongs to an earlier request")
	ErrMultiAppNotSupported = errors.New("multi-app mode is disabled on the robot")
	ErrInvalidMode          = errors.New("invalid session mode")
)

// State is the app lifecycle state of the session.
type State int

const (
	StateIdle State = iota
	StateAwaitingStart
	StateActiveApp
	StateAwaitingStop
	StateConfirmStopExisting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActiveApp:
		return "active_app"
	case StateAwaitingStop:
		return "awaiting_stop"
	case StateConfirmStopExisting:
		return "confirm_stop_existing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode selects whether the one-app-at-a-time rule is enforced.
type Mode string

const (
	ModeRegistered Mode = "registered"
	ModeDeveloper  Mode = "developer"
)

// ParseMode accepts "registered" or "developer", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRegistered, ModeDeveloper:
		return m, nil
	case "":
		return ModeRegistered, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Op is the remote operation a ticket was issued for.
type Op string

const (
	OpStart Op = "start"
	OpStop  Op = "stop"
)

// Ticket identifies one in-flight start or stop. Completions must hand back
// the ticket they were issued; tickets from an earlier session or request are
// rejected with ErrStaleCompletion.
type Ticket struct {
	Op    Op
	App   string
	Then  string
	Epoch uint64
	id    uint64
}

// Decision is the policy's answer to a start request.
type Decision int

const (
	// DecisionStart means the start may proceed with the returned ticket.
	DecisionStart Decision = iota
	// DecisionConfirm means other apps are running and the user must agree to
	// stop them first.
	DecisionConfirm
)

// Status is a point-in-time copy of the policy state.
type Status struct {
	State   State  `json:"state"`
	Mode    Mode   `json:"mode"`
	Active  string `json:"active,omitempty"`
	Pending string `json:"pending,omitempty"`
	Epoch   uint64 `json:"epoch"`
	Open    bool   `json:"open"`
}

// Policy enforces the single-active-app rule and sequences start and stop
// requests. It performs no I/O.
type Policy struct {
	mu      sync.Mutex
	mode    Mode
	state   State
	prev    State
	active  string
	pending string
	epoch   uint64
	nextID  uint64
	current uint64
	open    bool
}

// NewPolicy returns a closed policy in the given mode.
func NewPolicy(mode Mode) *Policy {
	if mode == "" {
		mode = ModeRegistered
	}
	return &Policy{mode: mode}
}

// Begin starts a new session epoch and returns it.
func (p *Policy) Begin() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.open = true
	p.resetLocked()
	return p.epoch
}

// End closes the session. Completions still in flight become stale.
func (p *Policy) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	p.open = false
	p.resetLocked()
}

// Epoch returns the current session epoch.
func (p *Policy) Epoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// Current reports whether epoch is the epoch of the open session.
func (p *Policy) Current(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open && epoch == p.epoch
}

// SetMode changes the exclusivity mode. Running apps are left alone.
func (p *Policy) SetMode(m Mode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
}

func (p *Policy) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

func (p *Policy) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:   p.state,
		Mode:    p.mode,
		Active:  p.active,
		Pending: p.pending,
		Epoch:   p.epoch,
		Open:    p.open,
	}
}

// RequestStart asks to start name given the current directory snapshot. In
// registered mode a start while another app runs needs confirmation first.
func (p *Policy) RequestStart(name string, snap directory.Snapshot) (Ticket, Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.readyLocked(); err != nil {
		return Ticket{}, 0, err
	}
	p.prev = p.state
	p.pending = name
	if p.mode == ModeRegistered && snap.AnyRunning() && !snap.IsRunning(name) {
		p.state = StateConfirmStopExisting
		return Ticket{}, DecisionConfirm, nil
	}
	p.state = StateAwaitingStart
	return p.issueLocked(OpStart, name, ""), DecisionStart, nil
}

// Confirm answers the stop-existing question. On accept the returned ticket
// stops every running app and, once that succeeds, the pending start resumes.
func (p *Policy) Confirm(accept bool) (Ticket, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return Ticket{}, false, ErrSessionClosed
	}
	if p.state != StateConfirmStopExisting {
		return Ticket{}, false, ErrNoPendingConfirm
	}
	if !accept {
		p.state = p.prev
		p.pending = ""
		return Ticket{}, false, nil
	}
	p.state = StateAwaitingStop
	return p.issueLocked(OpStop, models.StopAllApps, p.pending), true, nil
}

// StartSucceeded records the robot's acknowledgement of t.
func (p *Policy) StartSucceeded(t Ticket) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(t, OpStart); err != nil {
		return err
	}
	p.state = StateActiveApp
	p.active = t.App
	p.pending = ""
	return nil
}

// StartFailed returns the policy to where it was before the request and
// classifies cause.
func (p *Policy) StartFailed(t Ticket, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(t, OpStart); err != nil {
		return err
	}
	p.state = p.prev
	p.pending = ""
	if r, ok := robot.AsRejection(cause); ok && r.MultiAppNotSupported() {
		return fmt.Errorf("%w: %w", ErrMultiAppNotSupported, cause)
	}
	return cause
}

// RequestStop asks to stop name, or every app when name is "*".
func (p *Policy) RequestStop(name string) (Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.readyLocked(); err != nil {
		return Ticket{}, err
	}
	p.prev = p.state
	p.state = StateAwaitingStop
	return p.issueLocked(OpStop, name, ""), nil
}

// StopSucceeded records a completed stop. When the stop was the first half of
// a confirmed start, the returned ticket starts the pending app.
func (p *Policy) StopSucceeded(t Ticket) (Ticket, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(t, OpStop); err != nil {
		return Ticket{}, false, err
	}
	if t.App == models.StopAllApps || t.App == p.active {
		p.active = ""
	}
	if t.Then != "" {
		// A failed resumed start returns to what the stop left behind.
		p.prev = StateIdle
		if p.active != "" {
			p.prev = StateActiveApp
		}
		p.state = StateAwaitingStart
		p.pending = t.Then
		return p.issueLocked(OpStart, t.Then, ""), true, nil
	}
	if p.active == "" {
		p.state = StateIdle
	} else {
		p.state = StateActiveApp
	}
	return Ticket{}, false, nil
}

// StopFailed handles a failed stop. A robot reporting the app as not running
// counts as a successful stop.
func (p *Policy) StopFailed(t Ticket, cause error) (Ticket, bool, error) {
	if r, ok := robot.AsRejection(cause); ok && r.NotRunning() {
		return p.StopSucceeded(t)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkLocked(t, OpStop); err != nil {
		return Ticket{}, false, err
	}
	p.state = p.prev
	p.pending = ""
	return Ticket{}, false, cause
}

// Observe reconciles the active app with a new directory snapshot. Only idle
// and active states follow the robot; in-flight requests are left alone.
func (p *Policy) Observe(snap directory.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open || (p.state != StateIdle && p.state != StateActiveApp) {
		return
	}
	if p.active != "" && snap.IsRunning(p.active) {
		p.state = StateActiveApp
		return
	}
	if names := snap.RunningNames(); len(names) > 0 {
		p.active = names[0]
		p.state = StateActiveApp
		return
	}
	p.active = ""
	p.state = StateIdle
}

func (p *Policy) readyLocked() error {
	if !p.open {
		return ErrSessionClosed
	}
	switch p.state {
	case StateAwaitingStart, StateAwaitingStop, StateConfirmStopExisting:
		return ErrBusy
	}
	return nil
}

func (p *Policy) issueLocked(op Op, app, then string) Ticket {
	p.nextID++
	p.current = p.nextID
	return Ticket{Op: op, App: app, Then: then, Epoch: p.epoch, id: p.nextID}
}

// checkLocked consumes t if it is the outstanding ticket of this session.
func (p *Policy) checkLocked(t Ticket, op Op) error {
	if !p.open || t.Epoch != p.epoch || t.id != p.current || t.Op != op {
		return ErrStaleCompletion
	}
	p.current = 0
	return nil
}

func (p *Policy) resetLocked() {
	p.state = StateIdle
	p.prev = StateIdle
	p.active = ""
	p.pending = ""
	p.current = 0
}
