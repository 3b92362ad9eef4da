// Package service installs the appchooser daemon as a systemd unit.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"
)

const (
	DefaultName     = "appchooser"
	DefaultUnitDir  = "/etc/systemd/system"
	defaultCfgDir   = "/etc/appchooser"
	defaultDataPath = "/var/lib/appchooser"
)

var (
	ErrUnsupported = errors.New("systemd not available on this system")
	ErrNotRoot     = errors.New("root privileges required")
)

// Status is the state systemd reports for the unit.
type Status struct {
	Installed   bool   `json:"installed"`
	Enabled     bool   `json:"enabled"`
	Running     bool   `json:"running"`
	ActiveState string `json:"active_state"`
	SubState    string `json:"sub_state"`
}

// Config holds the unit parameters.
type Config struct {
	Name       string
	ExecPath   string
	ConfigPath string
	User       string
	WorkingDir string
	// Display is exported so clients launched on the host find the session.
	Display string
}

const unitTemplate = `[Unit]
Description=Robot App Chooser
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User={{.User}}
WorkingDirectory={{.WorkingDir}}
ExecStart={{.ExecPath}} serve --config {{.ConfigPath}}
Restart=on-failure
RestartSec=5
{{- if .Display}}
Environment=DISPLAY={{.Display}}
{{- end}}
StandardOutput=journal
StandardError=journal
NoNewPrivileges=true
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`

// Runner runs systemctl. Tests swap it out.
type Runner func(args ...string) ([]byte, error)

func systemctl(args ...string) ([]byte, error) {
	return exec.Command("systemctl", args...).CombinedOutput()
}

// Manager installs and inspects one unit.
type Manager struct {
	cfg     Config
	unitDir string
	run     Runner
	// checks is false in tests so that Install runs without root.
	checks bool
}

// NewManager returns a Manager writing units to DefaultUnitDir.
func NewManager(cfg Config) *Manager {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	return &Manager{cfg: cfg, unitDir: DefaultUnitDir, run: systemctl, checks: true}
}

// DefaultConfig returns the unit configuration for the running executable.
func DefaultConfig() Config {
	execPath, _ := os.Executable()
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	return Config{
		Name:       DefaultName,
		ExecPath:   execPath,
		ConfigPath: filepath.Join(defaultCfgDir, "config.yaml"),
		User:       "root",
		WorkingDir: defaultDataPath,
		Display:    os.Getenv("DISPLAY"),
	}
}

// UnitPath is where the unit file lives.
func (m *Manager) UnitPath() string {
	return filepath.Join(m.unitDir, m.cfg.Name+".service")
}

// Unit renders the unit file.
func (m *Manager) Unit() (string, error) {
	tmpl, err := template.New("unit").Parse(unitTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse unit template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m.cfg); err != nil {
		return "", fmt.Errorf("failed to render unit: %w", err)
	}
	return buf.String(), nil
}

func (m *Manager) preflight() error {
	if !m.checks {
		return nil
	}
	if runtime.GOOS != "linux" {
		return ErrUnsupported
	}
	if _, err := exec.LookPath("systemctl"); err != nil {
		return ErrUnsupported
	}
	if os.Geteuid() != 0 {
		return ErrNotRoot
	}
	return nil
}

// Install writes the unit, then enables and starts it.
func (m *Manager) Install() error {
	if err := m.preflight(); err != nil {
		return err
	}
	content, err := m.Unit()
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.UnitPath(), []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := m.systemctl("enable", "--now", m.cfg.Name); err != nil {
		return fmt.Errorf("failed to enable %s: %w", m.cfg.Name, err)
	}
	return nil
}

// Uninstall stops and removes the unit.
func (m *Manager) Uninstall() error {
	if err := m.preflight(); err != nil {
		return err
	}
	// The unit may already be stopped or disabled.
	_ = m.systemctl("disable", "--now", m.cfg.Name)

	if err := os.Remove(m.UnitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	if err := m.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	return nil
}

// Status reports what systemd knows about the unit.
func (m *Manager) Status() Status {
	var st Status
	if _, err := os.Stat(m.UnitPath()); err == nil {
		st.Installed = true
	}
	if out, err := m.run("show", m.cfg.Name, "--property=ActiveState,SubState"); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			key, value, _ := strings.Cut(strings.TrimSpace(line), "=")
			switch key {
			case "ActiveState":
				st.ActiveState = value
				st.Running = value == "active"
			case "SubState":
				st.SubState = value
			}
		}
	}
	if out, err := m.run("is-enabled", m.cfg.Name); err == nil {
		st.Enabled = strings.TrimSpace(string(out)) == "enabled"
	}
	return st
}

func (m *Manager) systemctl(args ...string) error {
	out, err := m.run(args...)
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
