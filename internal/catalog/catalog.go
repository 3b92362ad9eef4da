// Package catalog keeps the reconciled view of the robot's app exchange: what is
// installed, what can be installed, and the app the user is looking at.
package catalog

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

var (
	ErrAppNotFound         = errors.New("exchange app not found")
	ErrNoSelection         = errors.New("no exchange app selected")
	ErrDetailsUnavailable  = errors.New("app details unavailable")
	ErrSelectionSuperseded = errors.New("selection changed while loading details")
	ErrInvalidView         = errors.New("view must be installed or exchange")
)

// EventKind identifies catalog events.
type EventKind string

const (
	EventSnapshot         EventKind = "catalog_snapshot"
	EventSelection        EventKind = "selection_changed"
	EventRevertToPrevious EventKind = "revert_to_previous_view"
	EventDetails          EventKind = "details_loaded"
)

// Event is delivered to subscribers in the order the catalog changed.
type Event struct {
	Selection *Selection `json:"selection,omitempty"`
	Details   *Details   `json:"details,omitempty"`
	Kind      EventKind  `json:"kind"`
	View      View       `json:"view"`
	Snapshot  Snapshot   `json:"snapshot"`
}

// Update is the result of ApplyUpdate.
type Update struct {
	Selection *Selection
	Snapshot  Snapshot
	// Reverted is set when the selection vanished and the view went back to the
	// last list.
	Reverted bool
}

// Options configures a Catalog.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Catalog owns the exchange snapshot and the selection derived from it.
type Catalog struct {
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	seq       uint64
	selection *Selection
	view      View
	listView  View
	nextID    int
	listeners map[int]func(Event)

	current atomic.Pointer[Snapshot]
}

// New creates an empty catalog showing the installed list.
func New(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Catalog{
		logger:    opts.Logger,
		now:       opts.Now,
		view:      ViewInstalled,
		listView:  ViewInstalled,
		listeners: make(map[int]func(Event)),
	}
	c.current.Store(&Snapshot{})
	return c
}

// Snapshot returns the current snapshot.
func (c *Catalog) Snapshot() Snapshot {
	return *c.current.Load()
}

// ApplyUpdate replaces the snapshot and re-validates the selection against it.
func (c *Catalog) ApplyUpdate(available, installed []models.ExchangeApp) Update {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	next := &Snapshot{
		installed: dedupe(installed),
		available: dedupe(available),
		updatedAt: c.now(),
		seq:       c.seq,
	}
	c.current.Store(next)

	update := Update{Snapshot: *next}
	if c.selection != nil {
		if app, isInstalled, ok := next.Lookup(c.selection.Name); ok {
			sel := selectionFor(app, isInstalled)
			c.selection = &sel
		} else {
			c.logger.Info("selected exchange app disappeared", zap.String("app", c.selection.Name))
			c.selection = nil
			c.view = c.listView
			update.Reverted = true
		}
	}
	update.Selection = c.selectionCopy()

	c.emit(Event{Kind: EventSnapshot, Snapshot: *next, Selection: update.Selection, View: c.view})
	if update.Reverted {
		c.emit(Event{Kind: EventRevertToPrevious, Snapshot: *next, View: c.view})
	}
	return update
}

// Select picks an app from the current snapshot and opens its detail view.
func (c *Catalog) Select(name string) (Selection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.current.Load()
	app, isInstalled, ok := snap.Find(name)
	if !ok {
		return Selection{}, ErrAppNotFound
	}
	sel := selectionFor(app, isInstalled)
	c.selection = &sel
	c.view = ViewDetail
	c.emit(Event{Kind: EventSelection, Snapshot: *snap, Selection: c.selectionCopy(), View: c.view})
	return sel, nil
}

// Deselect clears the selection and returns to the last list view.
func (c *Catalog) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = nil
	c.view = c.listView
	c.emit(Event{Kind: EventSelection, Snapshot: *c.current.Load(), View: c.view})
}

// Selection returns the current selection, if any.
func (c *Catalog) Selection() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil {
		return Selection{}, false
	}
	return *c.selection, true
}

// ShowInstalled switches to the installed list.
func (c *Catalog) ShowInstalled() {
	c.showList(ViewInstalled)
}

// ShowExchange switches to the list of installable apps.
func (c *Catalog) ShowExchange() {
	c.showList(ViewExchange)
}

func (c *Catalog) showList(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	c.listView = v
}

// View returns the screen currently shown.
func (c *Catalog) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// ApplyDetails attaches the detail response for the selected app. A nil app
// reverts to the last list view.
func (c *Catalog) ApplyDetails(name string, app *models.ExchangeApp) (Details, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selection == nil || c.selection.Name != name {
		return Details{}, ErrSelectionSuperseded
	}
	if app == nil {
		c.revertLocked()
		return Details{}, ErrDetailsUnavailable
	}

	details := newDetails(*app)
	snap := c.current.Load()
	if current, isInstalled, ok := snap.Lookup(name); ok {
		sel := selectionFor(current, isInstalled)
		c.selection = &sel
	}
	c.emit(Event{Kind: EventDetails, Snapshot: *snap, Selection: c.selectionCopy(), Details: &details, View: c.view})
	return details, nil
}

// FailDetails reverts to the last list view after a failed detail request.
func (c *Catalog) FailDetails(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil || c.selection.Name != name {
		return
	}
	c.revertLocked()
}

func (c *Catalog) revertLocked() {
	c.view = c.listView
	c.emit(Event{Kind: EventRevertToPrevious, Snapshot: *c.current.Load(), Selection: c.selectionCopy(), View: c.view})
}

// Reset empties the catalog and drops the selection when the session ends.
func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.current.Store(&Snapshot{seq: c.seq})
	c.selection = nil
	c.view = ViewInstalled
	c.listView = ViewInstalled
}

// Subscribe registers fn for catalog events. fn runs inside the catalog's
// critical section and must not call back into the catalog.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Catalog) emit(e Event) {
	for _, fn := range c.listeners {
		fn(e)
	}
}

func (c *Catalog) selectionCopy() *Selection {
	if c.selection == nil {
		return nil
	}
	sel := *c.selection
	return &sel
}
