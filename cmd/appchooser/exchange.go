package main

import (
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/app-chooser/internal/catalog"
)

type exchangeResponse struct {
	Catalog struct {
		Installed []catalog.Entry `json:"installed"`
		Available []catalog.Entry `json:"available"`
	} `json:"catalog"`
	Selection *catalog.Selection `json:"selection"`
}

func exchangeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Browse and manage the robot's app exchange",
	}
	cmd.AddCommand(exchangeListCmd(), exchangeChangeCmd("install", "Install or upgrade an app"),
		exchangeChangeCmd("uninstall", "Uninstall an app"))
	return cmd
}

func exchangeListCmd() *cobra.Command {
	var refresh, remote bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed and available exchange apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			var state exchangeResponse
			if refresh || remote {
				path := "/exchange/refresh"
				if remote {
					path += "?remote_update=true"
				}
				_, err = api.call(http.MethodPost, path, nil, &state)
			} else {
				_, err = api.call(http.MethodGet, "/exchange", nil, &state)
			}
			if err != nil {
				return err
			}
			printExchange(cmd.OutOrStdout(), state)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "reload the catalog from the robot")
	cmd.Flags().BoolVar(&remote, "remote-update", false, "have the robot update its index before listing")
	return cmd
}

func printExchange(out io.Writer, state exchangeResponse) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tLABEL\tVERSION\tSTATE")
	for _, e := range state.Catalog.Installed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Label, e.Version, "installed")
	}
	for _, e := range state.Catalog.Available {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Label, e.LatestVersion, "available")
	}
	w.Flush()
}

func exchangeChangeCmd(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient()
			if err != nil {
				return err
			}
			var state exchangeResponse
			if _, err := api.call(http.MethodPost, "/exchange/"+op, map[string]string{"name": args[0]}, &state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s done\n", args[0], op)
			if state.Selection != nil {
				fmt.Fprintln(cmd.OutOrStdout(), state.Selection.Title)
			}
			return nil
		},
	}
}
