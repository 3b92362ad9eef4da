package directory

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

func app(name string, clientTypes ...string) models.RemoteApp {
	a := models.RemoteApp{Name: name, DisplayName: name}
	for _, ct := range clientTypes {
		a.ClientApps = append(a.ClientApps, models.ClientApp{ClientType: ct})
	}
	return a
}

func names(apps []models.RemoteApp) []string {
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, a.Name)
	}
	return out
}

func TestApplyUpdate_FiltersForeignClients(t *testing.T) {
	d := New(Options{})

	snap := d.ApplyUpdate([]models.RemoteApp{
		app("nav", "android"),
		app("web_only", "web"),
		app("mixed", "web", "android"),
		app("daemon"),
	}, nil)

	assert.Equal(t, []string{"nav", "mixed", "daemon"}, names(snap.Available()))
	assert.Equal(t, []string{"nav", "mixed"}, names(snap.Launchable()))
}

func TestApplyUpdate_ConsecutiveForeignAppsAllDropped(t *testing.T) {
	d := New(Options{})

	snap := d.ApplyUpdate([]models.RemoteApp{
		app("a", "web"),
		app("b", "web"),
		app("c", "android"),
	}, nil)

	assert.Equal(t, []string{"c"}, names(snap.Available()))
}

func TestSnapshot_RunningLike(t *testing.T) {
	d := New(Options{})

	snap := d.ApplyUpdate(
		[]models.RemoteApp{app("nav", "android"), app("monitor")},
		[]models.RemoteApp{app("teleop", "android")},
	)

	assert.Equal(t, []string{"teleop", "monitor"}, names(snap.RunningLike()))
	assert.True(t, snap.IsRunning("teleop"))
	assert.False(t, snap.IsRunning("monitor"))
	assert.True(t, snap.AnyRunning())
	assert.NotContains(t, names(snap.Launchable()), "monitor")
}

func TestApplyUpdate_Idempotent(t *testing.T) {
	d := New(Options{})
	available := []models.RemoteApp{app("nav", "android"), app("nav", "android"), app("map", "android")}
	running := []models.RemoteApp{app("nav", "android")}

	first := d.ApplyUpdate(available, running)
	second := d.ApplyUpdate(available, running)

	assert.Equal(t, first.Available(), second.Available())
	assert.Equal(t, first.Running(), second.Running())
	assert.Equal(t, []string{"nav", "map"}, names(second.Available()))
	assert.Equal(t, first.Seq()+1, second.Seq())
}

func TestApplyUpdate_DoesNotAliasCallerSlices(t *testing.T) {
	d := New(Options{})
	available := []models.RemoteApp{app("nav", "android")}
	d.ApplyUpdate(available, nil)

	available[0].Name = "mutated"
	got := d.Snapshot().Available()
	got[0].DisplayName = "also mutated"

	assert.Equal(t, "nav", d.Snapshot().Available()[0].Name)
	assert.Equal(t, "nav", d.Snapshot().Available()[0].DisplayName)
}

func TestApplyUpdate_ReadersNeverSeeMixedUpdates(t *testing.T) {
	d := New(Options{})

	updates := make([][2][]models.RemoteApp, 2)
	for i := range updates {
		tag := fmt.Sprintf("u%d", i)
		updates[i] = [2][]models.RemoteApp{
			{app(tag+"-a", "android"), app(tag+"-b", "android")},
			{app(tag+"-a", "android")},
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(u [2][]models.RemoteApp) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					d.ApplyUpdate(u[0], u[1])
				}
			}
		}(updates[w])
	}

	for i := 0; i < 2000; i++ {
		snap := d.Snapshot()
		avail, running := snap.Available(), snap.Running()
		if len(avail) == 0 {
			continue
		}
		require.Len(t, running, 1)
		require.Equal(t, avail[0].Name, running[0].Name)
	}
	close(stop)
	wg.Wait()
}

func TestFail_RetainsSnapshot(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	d := New(Options{Now: func() time.Time { return now }})
	d.ApplyUpdate([]models.RemoteApp{app("nav", "android")}, nil)

	cause := errors.New("connection refused")
	err := d.Fail(cause)

	var unavailable *DirectoryUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, now, unavailable.LastUpdate)
	assert.Equal(t, []string{"nav"}, names(d.Snapshot().Available()))
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	noCache := New(Options{Now: clock})
	noCache.ApplyUpdate(nil, nil)
	assert.True(t, noCache.NeedsRefresh())

	cached := New(Options{TTL: time.Minute, Now: clock})
	assert.True(t, cached.NeedsRefresh())
	cached.ApplyUpdate(nil, nil)
	assert.False(t, cached.NeedsRefresh())
	now = now.Add(time.Minute)
	assert.True(t, cached.NeedsRefresh())
}

func TestSubscribe_ReceivesUpdatesInOrder(t *testing.T) {
	d := New(Options{})
	var seqs []uint64
	unsubscribe := d.Subscribe(func(s Snapshot) { seqs = append(seqs, s.Seq()) })

	d.ApplyUpdate(nil, nil)
	d.ApplyUpdate(nil, nil)
	unsubscribe()
	d.ApplyUpdate(nil, nil)

	assert.Equal(t, []uint64{1, 2}, seqs)
}

func TestReset(t *testing.T) {
	d := New(Options{})
	d.ApplyUpdate([]models.RemoteApp{app("nav", "android")}, []models.RemoteApp{app("nav", "android")})
	d.Reset()

	snap := d.Snapshot()
	assert.Empty(t, snap.Available())
	assert.False(t, snap.AnyRunning())
	assert.True(t, snap.UpdatedAt().IsZero())
}
