package launcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

type fakePlatform struct {
	entries    map[string]string
	handlers   map[string]bool
	err        error
	dispatched []*LaunchRequest
	attempts   int
}

func (p *fakePlatform) LaunchEntry(_ context.Context, packageID string) (string, bool) {
	e, ok := p.entries[packageID]
	return e, ok
}

func (p *fakePlatform) Dispatch(_ context.Context, req *LaunchRequest) (DispatchResult, error) {
	p.attempts++
	if p.err != nil {
		return NoHandlerFound, p.err
	}
	if req.Entry != "" || p.handlers[req.Action] {
		p.dispatched = append(p.dispatched, req)
		return Dispatched, nil
	}
	return NoHandlerFound, nil
}

func androidClient(action string, appData ...models.KeyValue) models.ClientApp {
	c := models.ClientApp{ClientType: models.ClientTypeAndroid, AppData: appData}
	if action != "" {
		c.ManagerData = []models.KeyValue{{Key: IntentAction, Value: action}}
	}
	return c
}

func TestDescriptor_PackageAndInstallID(t *testing.T) {
	tests := []struct {
		action    string
		pkg       string
		installID string
	}{
		{"org.ros.nav.MAIN", "org.ros.nav", "org.ros.nav"},
		{"org.ros.teleop.android.MAIN", "org.ros.teleop", "org.ros.teleop.android"},
		{"com.example", "com.example", "com"},
		{"single", "single", "single"},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			d := NewClientDescriptor(androidClient(tt.action))
			assert.Equal(t, tt.pkg, d.PackageID())
			assert.Equal(t, tt.installID, d.InstallID())
		})
	}
}

func TestDescriptor_Build(t *testing.T) {
	spec := models.ClientApp{
		ClientType: models.ClientTypeAndroid,
		ManagerData: []models.KeyValue{
			{Key: IntentAction, Value: "org.ros.map.VIEW"},
			{Key: IntentCategory, Value: "android.intent.category.DEFAULT"},
			{Key: IntentType, Value: "text/plain"},
		},
		AppData: []models.KeyValue{
			{Key: "base_control_topic", Value: "/cmd_vel"},
			{Key: "camera_topic", Value: "/camera"},
			{Key: "base_control_topic", Value: "/base/cmd_vel"},
		},
	}
	platform := &fakePlatform{entries: map[string]string{"org.ros.map": "org.ros.map/.MainActivity"}}

	req := NewClientDescriptor(spec).Build(context.Background(), platform, "map_nav")

	assert.Equal(t, "org.ros.map.VIEW", req.Action)
	assert.Equal(t, "org.ros.map", req.PackageID)
	assert.Equal(t, "org.ros.map/.MainActivity", req.Entry)
	assert.Equal(t, "android.intent.category.DEFAULT", req.Category)
	assert.Equal(t, "text/plain", req.Type)
	assert.Equal(t, []string{"base_control_topic", "camera_topic", RemoteAppNameExtra}, req.Extras.Keys())
	v, _ := req.Extras.Get("base_control_topic")
	assert.Equal(t, "/base/cmd_vel", v)
	v, _ = req.Extras.Get(RemoteAppNameExtra)
	assert.Equal(t, "map_nav", v)
}

func TestDescriptor_BuildWithoutAction(t *testing.T) {
	req := NewClientDescriptor(models.ClientApp{ClientType: models.ClientTypeAndroid}).
		Build(context.Background(), &fakePlatform{}, "headless")

	assert.False(t, req.HasAction())
	assert.Empty(t, req.PackageID)
	assert.Equal(t, 1, req.Extras.Len())
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(&fakePlatform{}, "", nil)
	ctx := context.Background()

	t.Run("no client needed", func(t *testing.T) {
		out := r.Resolve(ctx, models.RemoteApp{Name: "watchdog"})
		assert.Equal(t, NoClientNeeded, out.Kind)
	})

	t.Run("single match resolves", func(t *testing.T) {
		app := models.RemoteApp{Name: "nav", ClientApps: []models.ClientApp{androidClient("org.ros.nav.MAIN")}}
		out := r.Resolve(ctx, app)
		require.Equal(t, Resolved, out.Kind)
		assert.Equal(t, "org.ros.nav", out.Request.PackageID)
	})

	t.Run("zero matches is ambiguous", func(t *testing.T) {
		app := models.RemoteApp{Name: "web", ClientApps: []models.ClientApp{{ClientType: "web"}}}
		out := r.Resolve(ctx, app)
		assert.Equal(t, Ambiguous, out.Kind)
		assert.Equal(t, 0, out.Count)
	})

	t.Run("two matches is ambiguous", func(t *testing.T) {
		app := models.RemoteApp{Name: "dup", ClientApps: []models.ClientApp{
			androidClient("org.ros.a.MAIN"),
			{ClientType: "web"},
			androidClient("org.ros.b.MAIN"),
		}}
		out := r.Resolve(ctx, app)
		assert.Equal(t, Ambiguous, out.Kind)
		assert.Equal(t, 2, out.Count)
	})
}

func TestResolver_Launch(t *testing.T) {
	ctx := context.Background()
	nav := models.RemoteApp{Name: "nav", ClientApps: []models.ClientApp{androidClient("org.ros.nav.MAIN")}}

	t.Run("dispatched through package entry", func(t *testing.T) {
		platform := &fakePlatform{entries: map[string]string{"org.ros.nav": "nav-entry"}}
		out, err := NewResolver(platform, models.ClientTypeAndroid, nil).Launch(ctx, nav)
		require.NoError(t, err)
		assert.Equal(t, Resolved, out.Kind)
		require.Len(t, platform.dispatched, 1)
		assert.Equal(t, "nav-entry", platform.dispatched[0].Entry)
	})

	t.Run("dispatched through raw action", func(t *testing.T) {
		platform := &fakePlatform{handlers: map[string]bool{"org.ros.nav.MAIN": true}}
		out, err := NewResolver(platform, models.ClientTypeAndroid, nil).Launch(ctx, nav)
		require.NoError(t, err)
		assert.Equal(t, Resolved, out.Kind)
	})

	t.Run("not installed offers install", func(t *testing.T) {
		platform := &fakePlatform{}
		out, err := NewResolver(platform, models.ClientTypeAndroid, nil).Launch(ctx, nav)
		require.NoError(t, err)
		assert.Equal(t, 1, platform.attempts)
		assert.Equal(t, ClientNotInstalled, out.Kind)
		assert.Equal(t, "org.ros.nav", out.InstallID)
		assert.Equal(t, "market://details?id=org.ros.nav", out.MarketURI)
	})

	t.Run("ambiguous is not dispatched", func(t *testing.T) {
		platform := &fakePlatform{handlers: map[string]bool{"org.ros.a.MAIN": true}}
		app := models.RemoteApp{Name: "dup", ClientApps: []models.ClientApp{androidClient("org.ros.a.MAIN"), androidClient("org.ros.a.MAIN")}}
		out, err := NewResolver(platform, models.ClientTypeAndroid, nil).Launch(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, Ambiguous, out.Kind)
		assert.Zero(t, platform.attempts)
	})

	t.Run("platform errors surface", func(t *testing.T) {
		platform := &fakePlatform{err: errors.New("boom")}
		_, err := NewResolver(platform, models.ClientTypeAndroid, nil).Launch(ctx, nav)
		assert.ErrorIs(t, err, ErrDispatchFailed)
	})
}
