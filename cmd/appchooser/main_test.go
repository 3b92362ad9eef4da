package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDaemon(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	mux := http.NewServeMux()
	mux.HandleFunc("/chooser/api/apps", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		io.WriteString(w, `{"available":[{"name":"nav","display_name":"Navigation","client_apps":[]}],"running":[{"name":"bringup","display_name":"Bringup"}],"running_like":["nav","bringup"]}`)
	})
	mux.HandleFunc("/chooser/api/apps/teleop/start", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"running":["nav"],"needs_confirmation":true}`)
	})
	mux.HandleFunc("/chooser/api/session/confirm", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]bool
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["accept"] {
			calls = append(calls, "confirm yes")
		} else {
			calls = append(calls, "confirm no")
		}
		io.WriteString(w, `{"outcome":{"app":"teleop","kind":"client_not_installed","market_uri":"market://details?id=org.ros.teleop"}}`)
	})
	mux.HandleFunc("/chooser/api/apps/ghost/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"app not found","class":"invalid"}`)
	})
	mux.HandleFunc("/chooser/api/exchange/install", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, "install "+body["name"])
		io.WriteString(w, `{"catalog":{"installed":[],"available":[]},"selection":{"name":"teleop","title":"Teleop (Installed)"}}`)
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cfgFile, serverURL = "", ""
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAppsList(t *testing.T) {
	srv, calls := fakeDaemon(t)

	out, err := run(t, "", "--server", srv.URL+"/chooser", "apps", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "nav")
	assert.Contains(t, out, "Navigation")
	assert.Contains(t, out, "running (no client)")
	assert.Equal(t, []string{"GET /chooser/api/apps"}, *calls)
}

func TestAppsStartAsksBeforeStopping(t *testing.T) {
	srv, calls := fakeDaemon(t)

	out, err := run(t, "y\n", "--server", srv.URL+"/chooser", "apps", "start", "teleop")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop current application (nav)?")
	assert.Contains(t, out, "market://details?id=org.ros.teleop")
	assert.Equal(t, []string{"POST /chooser/api/apps/teleop/start", "confirm yes"}, *calls)
}

func TestAppsStartDeclined(t *testing.T) {
	srv, calls := fakeDaemon(t)

	out, err := run(t, "n\n", "--server", srv.URL+"/chooser", "apps", "start", "teleop")
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled")
	assert.Equal(t, "confirm no", (*calls)[1])
}

func TestAppsStopReportsDaemonError(t *testing.T) {
	srv, _ := fakeDaemon(t)

	_, err := run(t, "", "--server", srv.URL+"/chooser", "apps", "stop", "ghost")
	require.Error(t, err)
	assert.Equal(t, "app not found", err.Error())

	_, err = run(t, "", "--server", srv.URL+"/chooser", "apps", "stop")
	require.Error(t, err)
}

func TestExchangeInstall(t *testing.T) {
	srv, calls := fakeDaemon(t)

	out, err := run(t, "", "--server", srv.URL+"/chooser", "exchange", "install", "teleop")
	require.NoError(t, err)
	assert.Contains(t, out, "Teleop (Installed)")
	assert.Equal(t, []string{"install teleop"}, *calls)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "appchooser")
}

func TestServiceUnit(t *testing.T) {
	out, err := run(t, "", "--config", "/etc/chooser.yaml", "service", "unit", "--user", "robot")
	require.NoError(t, err)
	assert.Contains(t, out, "serve --config /etc/chooser.yaml")
	assert.Contains(t, out, "User=robot")
}
