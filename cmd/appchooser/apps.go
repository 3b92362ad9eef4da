package main

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/app-chooser/internal/launcher"
	"github.com/pandeptwidyaop/app-chooser/internal/models"
)

type appsResponse struct {
	Available   []models.RemoteApp `json:"available"`
	Running     []models.RemoteApp `json:"running"`
	RunningLike []string           `json:"running_like"`
}

// outcomeView decodes a launch outcome as the daemon renders it.
type outcomeView struct {
	Request *struct {
		Action string `json:"action"`
		Entry  string `json:"entry"`
	} `json:"request"`
	App       string `json:"app"`
	Kind      string `json:"kind"`
	MarketURI string `json:"market_uri"`
	Count     int    `json:"count"`
}

type startResponse struct {
	Outcome           *outcomeView `json:"outcome"`
	Running           []string     `json:"running"`
	NeedsConfirmation bool         `json:"needs_confirmation"`
}

func appsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List, start and stop robot apps",
	}
	cmd.AddCommand(appsListCmd(), appsStartCmd(), appsStopCmd())
	return cmd
}

func appsListCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the robot's apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			var apps appsResponse
			path := "/apps"
			method := http.MethodGet
			if refresh {
				path, method = "/apps/refresh", http.MethodPost
			}
			if _, err := api.call(method, path, nil, &apps); err != nil {
				return err
			}
			printApps(cmd.OutOrStdout(), apps)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "reload the list from the robot")
	return cmd
}

func printApps(out io.Writer, apps appsResponse) {
	running := make(map[string]bool, len(apps.RunningLike))
	for _, name := range apps.RunningLike {
		running[name] = true
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tSTATE")
	for _, app := range apps.Available {
		state := "-"
		if running[app.Name] {
			state = "running"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", app.Name, app.DisplayName, state)
	}
	for _, app := range apps.Running {
		if !app.HasClient() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", app.Name, app.DisplayName, "running (no client)")
		}
	}
	w.Flush()
}

func appsStartCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "start <name>",
		Short: "Start an app and launch its client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			var res startResponse
			status, err := api.call(http.MethodPost, "/apps/"+args[0]+"/start", nil, &res)
			if err != nil {
				return err
			}
			if status == http.StatusAccepted && res.NeedsConfirmation {
				accept := yes || confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
					fmt.Sprintf("Stop current application (%s)? [y/N] ", strings.Join(res.Running, ", ")))
				res = startResponse{}
				if _, err := api.call(http.MethodPost, "/session/confirm", map[string]bool{"accept": accept}, &res); err != nil {
					return err
				}
				if !accept {
					fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
					return nil
				}
			}
			printOutcome(cmd.OutOrStdout(), res.Outcome)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "stop running apps without asking")
	return cmd
}

func printOutcome(out io.Writer, o *outcomeView) {
	fmt.Fprintln(out, "Started")
	if o == nil {
		return
	}
	switch o.Kind {
	case launcher.ClientNotInstalled.String():
		fmt.Fprintf(out, "client not installed, install it from %s\n", o.MarketURI)
	case launcher.Ambiguous.String():
		fmt.Fprintf(out, "no single client for this app (%d matches)\n", o.Count)
	case launcher.Resolved.String():
		if o.Request != nil {
			target := o.Request.Entry
			if target == "" {
				target = o.Request.Action
			}
			fmt.Fprintf(out, "launched %s\n", target)
		}
	}
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	if in == nil {
		in = os.Stdin
	}
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func appsStopCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "stop [name]",
		Short: "Stop an app, or every running app with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("app name required (or --all)")
			}
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			path := "/apps/stop-all"
			if !all {
				path = "/apps/" + args[0] + "/stop"
			}
			if _, err := api.call(http.MethodPost, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "stop every running app")
	return cmd
}
