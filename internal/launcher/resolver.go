// Package launcher resolves which local client application fronts a remote
// robot app and hands the resulting launch request to the host platform.
package launcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

// MarketURIPrefix prefixes the install id in the offer shown for missing clients.
const MarketURIPrefix = "market://details?id="

// OutcomeKind classifies the result of resolving or launching a remote app.
type OutcomeKind int

const (
	// NoClientNeeded means the app has no client UI; it can only be observed or stopped.
	NoClientNeeded OutcomeKind = iota
	// Resolved means exactly one client matched and a request was built (and,
	// for Launch, dispatched).
	Resolved
	// Ambiguous means zero or several clients of the target type were declared.
	Ambiguous
	// ClientNotInstalled means no local handler accepted the request.
	ClientNotInstalled
)

func (k OutcomeKind) String() string {
	switch k {
	case NoClientNeeded:
		return "no_client_needed"
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	case ClientNotInstalled:
		return "client_not_installed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Outcome is the result of Resolve or Launch.
type Outcome struct {
	Request   *LaunchRequest `json:"request,omitempty"`
	App       string         `json:"app"`
	InstallID string         `json:"install_id,omitempty"`
	MarketURI string         `json:"market_uri,omitempty"`
	Kind      OutcomeKind    `json:"kind"`
	Count     int            `json:"count,omitempty"`
}

// ErrDispatchFailed is returned when every dispatch attempt errored.
var ErrDispatchFailed = errors.New("client dispatch failed")

// Resolver selects client descriptors for a target client type.
type Resolver struct {
	platform   Platform
	clientType string
	logger     *zap.Logger
}

// NewResolver creates a resolver dispatching through platform.
func NewResolver(platform Platform, clientType string, logger *zap.Logger) *Resolver {
	if clientType == "" {
		clientType = models.ClientTypeAndroid
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{platform: platform, clientType: clientType, logger: logger}
}

// ClientType returns the client type this resolver matches.
func (r *Resolver) ClientType() string {
	return r.clientType
}

// Matching returns the descriptors of app whose type equals the resolver's, in
// input order.
func (r *Resolver) Matching(app models.RemoteApp) []*ClientDescriptor {
	var out []*ClientDescriptor
	for _, c := range app.ClientApps {
		if c.ClientType == r.clientType {
			out = append(out, NewClientDescriptor(c))
		}
	}
	return out
}

// Resolve builds the launch request for app without dispatching it.
func (r *Resolver) Resolve(ctx context.Context, app models.RemoteApp) Outcome {
	if !app.HasClient() {
		return Outcome{Kind: NoClientNeeded, App: app.Name}
	}
	matches := r.Matching(app)
	// Zero and many share one path: exactly one client is required.
	if len(matches) != 1 {
		return Outcome{Kind: Ambiguous, App: app.Name, Count: len(matches)}
	}
	return Outcome{
		Kind:    Resolved,
		App:     app.Name,
		Request: matches[0].Build(ctx, r.platform, app.Name),
	}
}

// Launch resolves app and dispatches the request. ClientNotInstalled is only
// reported after the platform refused every candidate request.
func (r *Resolver) Launch(ctx context.Context, app models.RemoteApp) (Outcome, error) {
	outcome := r.Resolve(ctx, app)
	if outcome.Kind != Resolved {
		r.logger.Info("launch not attempted",
			zap.String("app", app.Name),
			zap.String("outcome", outcome.Kind.String()),
			zap.Int("matches", outcome.Count))
		return outcome, nil
	}

	candidates := []*LaunchRequest{outcome.Request}

	var (
		last     *LaunchRequest
		errs     []error
		refusals int
	)
	for _, req := range candidates {
		last = req
		result, err := r.platform.Dispatch(ctx, req)
		if err != nil {
			r.logger.Warn("client dispatch error", zap.String("app", app.Name), zap.Stringer("request", req), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if result == Dispatched {
			r.logger.Info("client dispatched", zap.String("app", app.Name), zap.Stringer("request", req))
			return Outcome{Kind: Resolved, App: app.Name, Request: req}, nil
		}
		refusals++
		r.logger.Info("no handler for client", zap.String("app", app.Name), zap.Stringer("request", req))
	}

	if refusals == 0 && len(errs) > 0 {
		return outcome, fmt.Errorf("%w: %w", ErrDispatchFailed, errors.Join(errs...))
	}

	installID := last.FallbackInstallID
	return Outcome{
		Kind:      ClientNotInstalled,
		App:       app.Name,
		Request:   last,
		InstallID: installID,
		MarketURI: MarketURIPrefix + installID,
	}, nil
}
