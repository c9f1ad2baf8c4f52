// Package client is the HTTP client nwctl uses to talk to the nodewatch
// server.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadResult mirrors the server's upload response.
type UploadResult struct {
	Message          string `json:"message"`
	RecordsProcessed int    `json:"recordsProcessed"`
	UploadID         int64  `json:"uploadId"`
	RejectedRecords  int    `json:"rejectedRecords"`
}

// Upload posts one telemetry file as multipart form data. The part
// content type is derived from the file extension; the server sniffs
// gzip magic bytes anyway, so an unknown extension still works for the
// primary encoding.
func (c *Client) Upload(path string) (*UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	hdr.Set("Content-Type", contentTypeFor(path))

	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// Health reports the server's /healthz status.
func (c *Client) Health() (map[string]string, error) {
	var out map[string]string
	if err := c.getJSON("/healthz", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StatsByCategory fetches the canonical category totals.
func (c *Client) StatsByCategory() (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON("/api/v1/stats/by-type", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Nodes fetches the known node list.
func (c *Client) Nodes() (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON("/api/v1/nodes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
