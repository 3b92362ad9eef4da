package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
	"github.com/pandeptwidyaop/app-chooser/internal/directory"
	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
	"github.com/pandeptwidyaop/app-chooser/internal/robot/robottest"
)

func newConnectorFixture(t *testing.T, info models.RobotInfo) (*robottest.AppManager, *Controller, *Connector) {
	t.Helper()
	fake := robottest.New(info, remote("nav"), remote("map"))
	t.Cleanup(fake.Close)

	client := robot.NewClient(robot.Config{BaseURL: fake.URL(), Timeout: 2 * time.Second})
	sub := robot.NewSubscriber(robot.SubscriberOptions{
		URL:        client.EventsURL(),
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 50 * time.Millisecond,
	})
	ctl := NewController(Options{
		Robot:     client,
		Directory: directory.New(directory.Options{}),
		Catalog:   catalog.New(catalog.Options{}),
		Policy:    NewPolicy(ModeRegistered),
		Resolver:  launcher.NewResolver(&fakePlatform{}, models.ClientTypeAndroid, nil),
	})
	t.Cleanup(ctl.Shutdown)
	conn := NewConnector(ctl, client, sub, nil)
	t.Cleanup(conn.Disconnect)
	return fake, ctl, conn
}

func TestConnector_ConnectLoadsAndFollowsPushes(t *testing.T) {
	fake, ctl, conn := newConnectorFixture(t, models.RobotInfo{Name: "turtlebot", ExchangeURL: "http://exchange"})
	fake.SetExchange([]models.ExchangeApp{{Name: "teleop", Version: "1.0", LatestVersion: "1.0"}}, nil)

	info, err := conn.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "turtlebot", info.Robot.Name)
	assert.True(t, info.ExchangeEnabled)
	assert.True(t, info.Policy.Open)
	assert.Len(t, ctl.Apps().Available(), 2)
	assert.Len(t, ctl.Catalog().Available(), 1)
	assert.Contains(t, fake.Calls(), robot.PathInstallationState)

	require.Eventually(t, func() bool { return fake.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	fake.SetRunning("map")
	fake.PushAppList()
	require.Eventually(t, func() bool { return ctl.Apps().IsRunning("map") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, StateActiveApp, ctl.Info().Policy.State)

	conn.Disconnect()
	assert.False(t, ctl.Info().Policy.Open)
	require.Eventually(t, func() bool { return fake.Subscribers() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestConnector_ReconnectReplacesSession(t *testing.T) {
	fake, ctl, conn := newConnectorFixture(t, models.RobotInfo{Name: "turtlebot"})

	first, err := conn.Connect(context.Background())
	require.NoError(t, err)
	second, err := conn.Connect(context.Background())
	require.NoError(t, err)

	assert.Greater(t, second.Policy.Epoch, first.Policy.Epoch)
	assert.NotContains(t, fake.Calls(), robot.PathInstallationState)
	require.Eventually(t, func() bool { return fake.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	// a push for the replaced session is dropped
	assert.ErrorIs(t, ctl.HandleLogLine(first.Policy.Epoch, "late"), ErrStaleCompletion)
}

func TestConnector_ConnectFailure(t *testing.T) {
	fake, ctl, conn := newConnectorFixture(t, models.RobotInfo{Name: "turtlebot"})
	fake.FailNext(robot.PathRobotInfo, 10)

	_, err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, robot.IsTransport(err))
	assert.False(t, ctl.Info().Policy.Open)
}

func TestConnector_FailedFirstLoadKeepsFollowingPushes(t *testing.T) {
	fake, ctl, conn := newConnectorFixture(t, models.RobotInfo{Name: "turtlebot"})
	fake.FailNext(robot.PathListApps, 1)

	_, err := conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, ctl.Info().Policy.Open)
	assert.Empty(t, ctl.Apps().Available())

	require.Eventually(t, func() bool { return fake.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)
	fake.PushAppList()
	require.Eventually(t, func() bool { return len(ctl.Apps().Available()) == 2 }, 5*time.Second, 10*time.Millisecond)
}
