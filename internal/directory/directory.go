// Package directory keeps the reconciled view of the apps available and running
// on the robot. Pull responses and push notifications both go through
// ApplyUpdate, which replaces the whole snapshot at once.
package directory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// DirectoryUnavailable reports that the robot could not be reached. The
// previous snapshot is still being served.
type DirectoryUnavailable struct {
	Err        error
	LastUpdate time.Time
}

func (e *DirectoryUnavailable) Error() string {
	if e.LastUpdate.IsZero() {
		return fmt.Sprintf("app directory unavailable: %v", e.Err)
	}
	return fmt.Sprintf("app directory unavailable (serving update from %s): %v",
		e.LastUpdate.Format(time.RFC3339), e.Err)
}

func (e *DirectoryUnavailable) Unwrap() error {
	return e.Err
}

// Options configures a Directory.
type Options struct {
	// ClientType is the client this host can act as; available apps that only
	// declare other client types are dropped.
	ClientType string
	// TTL is how long a snapshot counts as fresh. Zero always refetches.
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Directory owns the current snapshot.
type Directory struct {
	opts Options

	mu        sync.Mutex
	seq       uint64
	nextID    int
	listeners map[int]func(Snapshot)

	current atomic.Pointer[Snapshot]
}

// New creates a directory holding an empty snapshot.
func New(opts Options) *Directory {
	if opts.ClientType == "" {
		opts.ClientType = models.ClientTypeAndroid
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Directory{opts: opts, listeners: make(map[int]func(Snapshot))}
	d.current.Store(&Snapshot{})
	return d
}

// Snapshot returns the current snapshot.
func (d *Directory) Snapshot() Snapshot {
	return *d.current.Load()
}

// ApplyUpdate replaces the snapshot with the given lists. Concurrent callers are
// serialised and the last one to arrive wins; nothing is merged.
func (d *Directory) ApplyUpdate(available, running []models.RemoteApp) Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	next := &Snapshot{
		available: filterAvailable(available, d.opts.ClientType),
		running:   dedupe(running),
		updatedAt: d.opts.Now(),
		seq:       d.seq,
	}
	d.current.Store(next)

	d.opts.Logger.Debug("app directory updated",
		zap.Uint64("seq", next.seq),
		zap.Int("available", len(next.available)),
		zap.Int("running", len(next.running)))

	for _, fn := range d.listeners {
		fn(*next)
	}
	return *next
}

// Reset drops back to an empty snapshot, used when the robot session ends.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.current.Store(&Snapshot{seq: d.seq})
}

// Fail records a failed fetch. The snapshot is kept as is.
func (d *Directory) Fail(err error) error {
	last := d.Snapshot().UpdatedAt()
	d.opts.Logger.Warn("app directory refresh failed", zap.Error(err))
	return &DirectoryUnavailable{Err: err, LastUpdate: last}
}

// NeedsRefresh reports whether the snapshot is older than the configured TTL.
func (d *Directory) NeedsRefresh() bool {
	if d.opts.TTL <= 0 {
		return true
	}
	updated := d.Snapshot().UpdatedAt()
	if updated.IsZero() {
		return true
	}
	return d.opts.Now().Sub(updated) >= d.opts.TTL
}

// Subscribe registers fn to receive every applied snapshot in update order.
// fn runs inside the update critical section and must not call ApplyUpdate.
func (d *Directory) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// filterAvailable drops apps whose clients are all of another type. Apps with
// no client at all are kept.
func filterAvailable(apps []models.RemoteApp, clientType string) []models.RemoteApp {
	out := make([]models.RemoteApp, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		if a.HasClient() && !a.SupportsClient(clientType) {
			continue
		}
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a.Clone())
	}
	return out
}

func dedupe(apps []models.RemoteApp) []models.RemoteApp {
	out := make([]models.RemoteApp, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		if _, dup := seen[a.Name]; dup {
			continue
		}
		seen[a.Name] = struct{}{}
		out = append(out, a.Clone())
	}
	return out
}
