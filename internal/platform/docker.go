package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
)

// DefaultLabelPrefix namespaces the image and container labels the docker
// platform reads and writes.
const DefaultLabelPrefix = "org.ros.appchooser"

// dockerAPI is the part of the docker client the platform uses.
type dockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	Close() error
}

// DockerOptions configures a DockerPlatform.
type DockerOptions struct {
	API         dockerAPI
	Logger      *zap.Logger
	OnExit      ExitFunc
	LabelPrefix string
	Network     string
}

// DockerPlatform runs clients packaged as images. An image provides a package
// when it carries the label <prefix>.package=<id> and handles the actions
// listed, comma separated, in <prefix>.actions.
type DockerPlatform struct {
	api     dockerAPI
	logger  *zap.Logger
	onExit  ExitFunc
	prefix  string
	network string
}

// NewDockerPlatform creates a DockerPlatform. Without an API it connects to
// the daemon from the environment.
func NewDockerPlatform(opts DockerOptions) (*DockerPlatform, error) {
	api := opts.API
	if api == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client: %w", err)
		}
		api = cli
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := opts.LabelPrefix
	if prefix == "" {
		prefix = DefaultLabelPrefix
	}
	return &DockerPlatform{
		api:     api,
		logger:  logger,
		onExit:  opts.OnExit,
		prefix:  prefix,
		network: opts.Network,
	}, nil
}

// SetOnExit replaces the exit callback. It must be called before the first
// dispatch.
func (p *DockerPlatform) SetOnExit(fn ExitFunc) {
	p.onExit = fn
}

// Close releases the docker client.
func (p *DockerPlatform) Close() error {
	return p.api.Close()
}

func (p *DockerPlatform) label(name string) string {
	return p.prefix + "." + name
}

// LaunchEntry implements launcher.Platform. The entry is the image reference.
func (p *DockerPlatform) LaunchEntry(ctx context.Context, packageID string) (string, bool) {
	images, err := p.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", p.label("package")+"="+packageID)),
	})
	if err != nil {
		p.logger.Warn("failed to list images", zap.Error(err))
		return "", false
	}
	if len(images) == 0 {
		return "", false
	}
	return imageRef(images[0]), true
}

// Dispatch implements launcher.Platform.
func (p *DockerPlatform) Dispatch(ctx context.Context, req *launcher.LaunchRequest) (launcher.DispatchResult, error) {
	ref := req.Entry
	if ref == "" {
		var err error
		ref, err = p.imageForAction(ctx, req.Action)
		if err != nil {
			return launcher.NoHandlerFound, err
		}
		if ref == "" {
			return launcher.NoHandlerFound, nil
		}
	}

	app := RemoteApp(req)
	resp, err := p.api.ContainerCreate(ctx,
		&container.Config{
			Image: ref,
			Env:   Environ(req),
			Labels: map[string]string{
				p.label("app"):    app,
				p.label("action"): req.Action,
			},
		},
		&container.HostConfig{AutoRemove: true, NetworkMode: container.NetworkMode(p.network)},
		nil, nil, "")
	if err != nil {
		return launcher.NoHandlerFound, fmt.Errorf("failed to create client container: %w", err)
	}
	if err := p.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return launcher.NoHandlerFound, fmt.Errorf("failed to start client container: %w", err)
	}

	p.logger.Info("client container started",
		zap.String("image", ref),
		zap.String("container", resp.ID),
		zap.String("app", app))

	go p.wait(resp.ID, app)
	return launcher.Dispatched, nil
}

func (p *DockerPlatform) imageForAction(ctx context.Context, action string) (string, error) {
	if action == "" {
		return "", nil
	}
	images, err := p.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", p.label("actions"))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list images: %w", err)
	}
	for _, img := range images {
		for _, a := range strings.Split(img.Labels[p.label("actions")], ",") {
			if strings.TrimSpace(a) == action {
				return imageRef(img), nil
			}
		}
	}
	return "", nil
}

func (p *DockerPlatform) wait(id, app string) {
	statusCh, errCh := p.api.ContainerWait(context.Background(), id, container.WaitConditionNotRunning)
	select {
	case st := <-statusCh:
		p.logger.Info("client container exited", zap.String("container", id), zap.Int64("status", st.StatusCode))
	case err := <-errCh:
		p.logger.Warn("client container wait failed", zap.String("container", id), zap.Error(err))
	}
	if p.onExit != nil {
		p.onExit(app)
	}
}

func imageRef(img image.Summary) string {
	if len(img.RepoTags) > 0 {
		return img.RepoTags[0]
	}
	return img.ID
}
