package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// Topic names a push channel of the app manager.
type Topic string

const (
	TopicAppList       Topic = "app_list"
	TopicExchange      Topic = "exchange_list"
	TopicInstallStatus Topic = "install_status"
)

// AllTopics is every topic the chooser listens to.
var AllTopics = []Topic{TopicAppList, TopicExchange, TopicInstallStatus}

// PushMessage is one frame on the events websocket.
type PushMessage struct {
	Topic Topic           `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// SubscribeRequest is sent right after connecting.
type SubscribeRequest struct {
	Op     string  `json:"op"`
	Topics []Topic `json:"topics"`
}

// PushHandler receives decoded notifications tagged with the session epoch the
// subscription was started for. A handler error ends the subscription.
type PushHandler interface {
	HandleAppList(epoch uint64, list models.AppList) error
	HandleCatalog(epoch uint64, state models.InstallationState) error
	HandleLogLine(epoch uint64, line string) error
}

// SubscriberOptions configures a Subscriber.
type SubscriberOptions struct {
	Dialer     *websocket.Dialer
	Logger     *zap.Logger
	URL        string
	Topics     []Topic
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Subscriber keeps a websocket to the app manager open and feeds frames to a
// PushHandler, reconnecting with exponential backoff.
type Subscriber struct {
	opts SubscriberOptions
}

func NewSubscriber(opts SubscriberOptions) *Subscriber {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.Topics) == 0 {
		opts.Topics = AllTopics
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 250 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 8 * time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	return &Subscriber{opts: opts}
}

// Run delivers notifications until ctx is done or the handler fails.
func (s *Subscriber) Run(ctx context.Context, epoch uint64, h PushHandler) error {
	backoff := s.opts.MinBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		connected, err := s.runOnce(ctx, epoch, h)
		var herr *handlerError
		if errors.As(err, &herr) {
			return herr.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = s.opts.MinBackoff
		}
		s.opts.Logger.Warn("push channel disconnected",
			zap.String("url", s.opts.URL),
			zap.Duration("retry_in", backoff),
			zap.Error(err))
		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

type handlerError struct {
	err error
}

func (e *handlerError) Error() string { return e.err.Error() }

func (s *Subscriber) runOnce(ctx context.Context, epoch uint64, h PushHandler) (bool, error) {
	conn, _, err := s.opts.Dialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(SubscribeRequest{Op: "subscribe", Topics: s.opts.Topics}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.opts.Logger.Info("push channel connected", zap.String("url", s.opts.URL), zap.Uint64("epoch", epoch))

	for {
		var msg PushMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var syntax *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typeErr) {
				s.opts.Logger.Warn("dropping malformed push frame", zap.Error(err))
				continue
			}
			return true, err
		}
		if err := s.dispatch(epoch, msg, h); err != nil {
			return true, err
		}
	}
}

func (s *Subscriber) dispatch(epoch uint64, msg PushMessage, h PushHandler) error {
	var err error
	switch msg.Topic {
	case TopicAppList:
		var list models.AppList
		if derr := json.Unmarshal(msg.Data, &list); derr != nil {
			s.opts.Logger.Warn("bad app list notification", zap.Error(derr))
			return nil
		}
		err = h.HandleAppList(epoch, list)
	case TopicExchange:
		var state models.InstallationState
		if derr := json.Unmarshal(msg.Data, &state); derr != nil {
			s.opts.Logger.Warn("bad exchange notification", zap.Error(derr))
			return nil
		}
		err = h.HandleCatalog(epoch, state)
	case TopicInstallStatus:
		var line string
		if derr := json.Unmarshal(msg.Data, &line); derr != nil {
			s.opts.Logger.Warn("bad install status line", zap.Error(derr))
			return nil
		}
		err = h.HandleLogLine(epoch, line)
	default:
		s.opts.Logger.Debug("ignoring push topic", zap.String("topic", string(msg.Topic)))
	}
	if err != nil {
		return &handlerError{err: err}
	}
	return nil
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
