package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/robot"
)

// InfoSource reports which robot is on the other end.
type InfoSource interface {
	Info(ctx context.Context) (models.RobotInfo, error)
}

// Pusher delivers robot notifications for one session epoch until ctx ends.
type Pusher interface {
	Run(ctx context.Context, epoch uint64, h robot.PushHandler) error
}

// Connector opens and closes sessions on a Controller and keeps the push
// subscription of the open session running.
type Connector struct {
	ctl    *Controller
	info   InfoSource
	push   Pusher
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnector creates a Connector. push may be nil to rely on polling.
func NewConnector(ctl *Controller, info InfoSource, push Pusher, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{ctl: ctl, info: info, push: push, logger: logger}
}

// Connect opens a new session: it asks the robot who it is, loads the app
// list and, when the robot has one, the exchange. A previously open session is
// closed first.
func (k *Connector) Connect(ctx context.Context) (Info, error) {
	k.Disconnect()

	info, err := k.info.Info(ctx)
	if err != nil {
		k.ctl.fail(ctx, "connect", "", err)
		return k.ctl.Info(), err
	}
	epoch := k.ctl.Open(info)
	// The subscriber reconnects on its own, so pushes can still fill in the
	// app list when the first load fails.
	k.follow(epoch)

	if _, err := k.ctl.Refresh(ctx, true); err != nil {
		return k.ctl.Info(), err
	}
	if info.ExchangeEnabled() {
		if _, err := k.ctl.RefreshCatalog(ctx, false); err != nil {
			k.logger.Warn("initial exchange load failed", zap.Error(err))
		}
	}
	return k.ctl.Info(), nil
}

// follow runs the push subscription for epoch until Disconnect.
func (k *Connector) follow(epoch uint64) {
	if k.push == nil {
		return
	}
	pushCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	k.mu.Lock()
	k.cancel, k.done = cancel, done
	k.mu.Unlock()

	go func() {
		defer close(done)
		err := k.push.Run(pushCtx, epoch, k.ctl)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, ErrStaleCompletion):
			k.logger.Debug("push subscription ended", zap.Uint64("epoch", epoch))
		default:
			k.logger.Warn("push subscription failed", zap.Uint64("epoch", epoch), zap.Error(err))
		}
	}()
}

// Disconnect stops the push subscription and closes the session.
func (k *Connector) Disconnect() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel, k.done = nil, nil
	k.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if k.ctl.Info().Policy.Open {
		k.ctl.Close()
	}
}
