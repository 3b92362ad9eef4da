package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// apiClient talks to a running daemon.
type apiClient struct {
	r *resty.Client
}

type apiError struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

func newAPIClient() (*apiClient, error) {
	base := serverURL
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		base = "http://" + cfg.Server.Addr() + cfg.Server.PathPrefix
	}
	base = strings.TrimRight(base, "/") + "/api"
	r := resty.New().
		SetBaseURL(base).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetError(&apiError{})
	return &apiClient{r: r}, nil
}

// call sends a request and decodes a 2xx body into out.
func (c *apiClient) call(method, path string, body, out any) (int, error) {
	req := c.r.R()
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return 0, fmt.Errorf("daemon not reachable: %w", err)
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Error != "" {
			return resp.StatusCode(), errors.New(e.Error)
		}
		return resp.StatusCode(), fmt.Errorf("daemon returned %s", resp.Status())
	}
	return resp.StatusCode(), nil
}
