package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/app-chooser/internal/service"
)

func serviceCmd() *cobra.Command {
	cfg := service.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the appchooser systemd unit",
	}
	cmd.PersistentFlags().StringVar(&cfg.User, "user", cfg.User, "user the daemon runs as")
	cmd.PersistentFlags().StringVar(&cfg.WorkingDir, "workdir", cfg.WorkingDir, "working directory of the daemon")
	cmd.PersistentFlags().StringVar(&cfg.Display, "display", cfg.Display, "DISPLAY for launched clients")

	manager := func() *service.Manager {
		if cfgFile != "" {
			cfg.ConfigPath = cfgFile
		}
		return service.NewManager(cfg)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "unit",
			Short: "Print the unit file",
			RunE: func(cmd *cobra.Command, args []string) error {
				unit, err := manager().Unit()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), unit)
				return nil
			},
		},
		&cobra.Command{
			Use:   "install",
			Short: "Install, enable and start the unit",
			RunE: func(cmd *cobra.Command, args []string) error {
				m := manager()
				if err := m.Install(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", m.UnitPath())
				return nil
			},
		},
		&cobra.Command{
			Use:   "uninstall",
			Short: "Stop and remove the unit",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := manager().Uninstall(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "uninstalled")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the unit state",
			Run: func(cmd *cobra.Command, args []string) {
				st := manager().Status()
				fmt.Fprintf(cmd.OutOrStdout(), "installed: %t\nenabled: %t\nstate: %s (%s)\n",
					st.Installed, st.Enabled, st.ActiveState, st.SubState)
			},
		},
	)
	return cmd
}
