package platform

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
	"github.com/pandeptwidyaop/app-chooser/internal/services"
)

// ExecOptions configures an ExecPlatform.
type ExecOptions struct {
	Registry Registry
	Logger   *zap.Logger
	OnExit   ExitFunc
	// Env is added to the environment of every client.
	Env []string
}

// ClientProcess describes a running client started by the exec platform.
type ClientProcess struct {
	Started    time.Time `json:"started"`
	PackageID  string    `json:"package_id"`
	App        string    `json:"app"`
	Command    string    `json:"command"`
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSS        uint64    `json:"rss"`
}

type execClient struct {
	cmd     *exec.Cmd
	started time.Time
	app     string
}

// ExecPlatform runs registered client packages as host processes. At most one
// process per package is kept; dispatching a package that is still running
// reuses it.
type ExecPlatform struct {
	registry Registry
	logger   *zap.Logger
	onExit   ExitFunc
	env      []string
	running  map[string]*execClient
	mu       sync.Mutex
}

// NewExecPlatform creates an ExecPlatform.
func NewExecPlatform(opts ExecOptions) *ExecPlatform {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecPlatform{
		registry: opts.Registry,
		logger:   logger,
		onExit:   opts.OnExit,
		env:      opts.Env,
		running:  make(map[string]*execClient),
	}
}

// SetOnExit replaces the exit callback.
func (p *ExecPlatform) SetOnExit(fn ExitFunc) {
	p.mu.Lock()
	p.onExit = fn
	p.mu.Unlock()
}

// LaunchEntry implements launcher.Platform.
func (p *ExecPlatform) LaunchEntry(_ context.Context, packageID string) (string, bool) {
	c, err := p.registry.GetByPackageID(packageID)
	if err != nil {
		return "", false
	}
	return entryFor(c), true
}

// Dispatch implements launcher.Platform.
func (p *ExecPlatform) Dispatch(ctx context.Context, req *launcher.LaunchRequest) (launcher.DispatchResult, error) {
	c, err := p.lookup(req)
	if errors.Is(err, services.ErrClientNotFound) {
		return launcher.NoHandlerFound, nil
	}
	if err != nil {
		return launcher.NoHandlerFound, err
	}

	app := RemoteApp(req)

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.running[c.PackageID]; ok && p.alive(ctx, existing) {
		p.logger.Info("client already running",
			zap.String("package", c.PackageID),
			zap.Int("pid", existing.cmd.Process.Pid))
		existing.app = app
		return launcher.Dispatched, nil
	}

	cmd := exec.Command(c.Command, c.Args...)
	cmd.Env = hostEnv(append(append([]string{}, p.env...), Environ(req)...))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("client command missing", zap.String("command", c.Command), zap.Error(err))
			return launcher.NoHandlerFound, nil
		}
		return launcher.NoHandlerFound, err
	}

	ec := &execClient{cmd: cmd, started: time.Now(), app: app}
	p.running[c.PackageID] = ec
	p.logger.Info("client started",
		zap.String("package", c.PackageID),
		zap.String("app", app),
		zap.Int("pid", cmd.Process.Pid))

	go p.wait(c.PackageID, ec)
	return launcher.Dispatched, nil
}

func (p *ExecPlatform) lookup(req *launcher.LaunchRequest) (*models.ClientPackage, error) {
	if req.Entry != "" {
		pkg, _, _ := strings.Cut(req.Entry, "/")
		return p.registry.GetByPackageID(pkg)
	}
	if req.Action == "" {
		return nil, services.ErrClientNotFound
	}
	return p.registry.FindByAction(req.Action)
}

func (p *ExecPlatform) wait(packageID string, ec *execClient) {
	err := ec.cmd.Wait()

	p.mu.Lock()
	if p.running[packageID] == ec {
		delete(p.running, packageID)
	}
	onExit := p.onExit
	app := ec.app
	p.mu.Unlock()

	p.logger.Info("client exited", zap.String("package", packageID), zap.Error(err))
	if onExit != nil {
		onExit(app)
	}
}

func (p *ExecPlatform) alive(ctx context.Context, ec *execClient) bool {
	ok, err := process.PidExistsWithContext(ctx, int32(ec.cmd.Process.Pid))
	return err == nil && ok
}

// Processes lists the running clients with their resource usage.
func (p *ExecPlatform) Processes(ctx context.Context) []ClientProcess {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ClientProcess, 0, len(p.running))
	for pkg, ec := range p.running {
		cp := ClientProcess{
			Started:   ec.started,
			PackageID: pkg,
			App:       ec.app,
			Command:   ec.cmd.Path,
			PID:       int32(ec.cmd.Process.Pid),
		}
		if proc, err := process.NewProcessWithContext(ctx, cp.PID); err == nil {
			if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
				cp.CPUPercent = pct
			}
			if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
				cp.RSS = mem.RSS
			}
		}
		out = append(out, cp)
	}
	return out
}

// Stop terminates the client of packageID if it is running.
func (p *ExecPlatform) Stop(ctx context.Context, packageID string) error {
	p.mu.Lock()
	ec, ok := p.running[packageID]
	p.mu.Unlock()
	if !ok {
		return services.ErrClientNotFound
	}

	proc, err := process.NewProcessWithContext(ctx, int32(ec.cmd.Process.Pid))
	if err != nil {
		return err
	}
	return proc.TerminateWithContext(ctx)
}

// Shutdown terminates every running client.
func (p *ExecPlatform) Shutdown(ctx context.Context) {
	p.mu.Lock()
	pkgs := make([]string, 0, len(p.running))
	for pkg := range p.running {
		pkgs = append(pkgs, pkg)
	}
	p.mu.Unlock()

	for _, pkg := range pkgs {
		if err := p.Stop(ctx, pkg); err != nil {
			p.logger.Warn("failed to stop client", zap.String("package", pkg), zap.Error(err))
		}
	}
}

func entryFor(c *models.ClientPackage) string {
	return c.PackageID + "/" + filepath.Base(c.Command)
}
