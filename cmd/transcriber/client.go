package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/or7nge/sheet-music-transcriber/internal/api"
)

type client struct {
	base string
	http *http.Client
}

func newClient(base string) *client {
	return &client{
		base: base,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *client) health() (api.HealthResponse, error) {
	var health api.HealthResponse
	err := c.getJSON("/api/health", &health)
	return health, err
}

func (c *client) job(id string) (api.Job, error) {
	var resp api.JobResponse
	if err := c.getJSON("/api/jobs/"+id, &resp); err != nil {
		return api.Job{}, err
	}
	return resp.Job, nil
}

func (c *client) submit(path string) (api.Job, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.Job{}, err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return api.Job{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return api.Job{}, err
	}
	if err := writer.Close(); err != nil {
		return api.Job{}, err
	}

	resp, err := c.http.Post(c.base+"/api/jobs", writer.FormDataContentType(), &buf)
	if err != nil {
		return api.Job{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return api.Job{}, decodeError(resp)
	}
	var payload api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.Job{}, fmt.Errorf("decode response: %w", err)
	}
	return payload.Job, nil
}

func (c *client) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var apiErr api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Detail != "" {
		return fmt.Errorf("%s (HTTP %d)", apiErr.Detail, resp.StatusCode)
	}
	return fmt.Errorf("request failed with HTTP %d", resp.StatusCode)
}
