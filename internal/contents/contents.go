// Package contents is a client for the contents API exposed by
// JupyterLab-compatible servers. The harness uses it as a side channel to
// seed fixture files before tests run and to remove them afterwards.
//
// Paths are always slash-separated and relative to the server root.
package contents

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/roach88/labshot/internal/failure"
)

// Model types reported by the contents API.
const (
	TypeFile      = "file"
	TypeNotebook  = "notebook"
	TypeDirectory = "directory"
)

// Model is a contents API entry. Content is left raw because its shape
// depends on Type (a list of models for directories, a string or JSON
// document otherwise).
type Model struct {
	Name         string          `json:"name"`
	Path         string          `json:"path"`
	Type         string          `json:"type"`
	Format       string          `json:"format,omitempty"`
	Mimetype     string          `json:"mimetype,omitempty"`
	Writable     bool            `json:"writable,omitempty"`
	Created      string          `json:"created,omitempty"`
	LastModified string          `json:"last_modified,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
}

// Children decodes the directory listing carried in Content.
func (m *Model) Children() ([]Model, error) {
	if m.Type != TypeDirectory {
		return nil, fmt.Errorf("contents: %s is a %s, not a directory", m.Path, m.Type)
	}
	if len(m.Content) == 0 || string(m.Content) == "null" {
		return nil, nil
	}
	var children []Model
	if err := json.Unmarshal(m.Content, &children); err != nil {
		return nil, fmt.Errorf("contents: decode listing of %s: %w", m.Path, err)
	}
	return children, nil
}

// Client talks to one server's contents endpoint.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the API token sent as "Authorization: token <t>".
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the server at baseURL (e.g. http://localhost:8888).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the server root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches the model at p, including its content.
func (c *Client) Get(ctx context.Context, p string) (*Model, error) {
	resp, err := c.do(ctx, http.MethodGet, p, "content=1", nil)
	if err != nil {
		return nil, failure.FromContext("get", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, failure.NotFound("get", p)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contents: get %s: %s", p, readStatus(resp))
	}

	var m Model
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("contents: decode %s: %w", p, err)
	}
	return &m, nil
}

// Exists reports whether p exists on the server.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, p, "content=0", nil)
	if err != nil {
		return false, failure.FromContext("exists", p, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("contents: exists %s: %s", p, readStatus(resp))
	}
}

// List returns the direct children of directory dir.
func (c *Client) List(ctx context.Context, dir string) ([]Model, error) {
	m, err := c.Get(ctx, dir)
	if err != nil {
		return nil, err
	}
	return m.Children()
}

// EnsureDirectory creates dir and every missing ancestor.
func (c *Client) EnsureDirectory(ctx context.Context, dir string) error {
	dir = clean(dir)
	if dir == "" {
		return nil
	}

	var cur string
	for _, seg := range strings.Split(dir, "/") {
		cur = path.Join(cur, seg)
		ok, err := c.Exists(ctx, cur)
		if err != nil {
			return failure.Transfer(cur, err)
		}
		if ok {
			continue
		}
		body := map[string]string{"type": TypeDirectory}
		if err := c.put(ctx, cur, body); err != nil {
			return failure.Transfer(cur, err)
		}
		c.logger.Debug("contents: created directory", "path", cur)
	}
	return nil
}

// Upload copies the local file at localPath to dest on the server,
// creating parent directories as needed. Any failure to read the source
// or to reach the destination is reported as a transfer failure.
func (c *Client) Upload(ctx context.Context, localPath, dest string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return failure.Transfer(dest, fmt.Errorf("read %s: %w", localPath, err))
	}
	return c.UploadBytes(ctx, data, dest)
}

// UploadBytes writes data to dest on the server as a base64 file model.
func (c *Client) UploadBytes(ctx context.Context, data []byte, dest string) error {
	dest = clean(dest)
	if dest == "" {
		return failure.Transfer(dest, fmt.Errorf("empty destination"))
	}

	if parent := path.Dir(dest); parent != "." {
		if err := c.EnsureDirectory(ctx, parent); err != nil {
			return err
		}
	}

	body := map[string]string{
		"type":    TypeFile,
		"format":  "base64",
		"content": base64.StdEncoding.EncodeToString(data),
	}
	if err := c.put(ctx, dest, body); err != nil {
		return failure.Transfer(dest, err)
	}

	c.logger.Info("contents: uploaded", "path", dest, "bytes", len(data))
	return nil
}

// Delete removes a file or empty directory. Deleting a missing path is not an error.
func (c *Client) Delete(ctx context.Context, p string) error {
	resp, err := c.do(ctx, http.MethodDelete, p, "", nil)
	if err != nil {
		return failure.FromContext("delete", p, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("contents: delete %s: %s", p, readStatus(resp))
	}
}

// DeleteDirectory removes dir and everything below it, children first.
// A missing directory is a no-op.
func (c *Client) DeleteDirectory(ctx context.Context, dir string) error {
	m, err := c.Get(ctx, dir)
	if failure.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if m.Type != TypeDirectory {
		return c.Delete(ctx, dir)
	}

	children, err := m.Children()
	if err != nil {
		return err
	}
	for _, child := range children {
		childPath := child.Path
		if childPath == "" {
			childPath = path.Join(clean(dir), child.Name)
		}
		if child.Type == TypeDirectory {
			err = c.DeleteDirectory(ctx, childPath)
		} else {
			err = c.Delete(ctx, childPath)
		}
		if err != nil {
			return err
		}
	}

	if err := c.Delete(ctx, dir); err != nil {
		return err
	}
	c.logger.Info("contents: deleted directory", "path", dir, "children", len(children))
	return nil
}

func (c *Client) put(ctx context.Context, p string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPut, p, "", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("put: %s", readStatus(resp))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, p, query string, body io.Reader) (*http.Response, error) {
	u := c.baseURL + "/api/contents/" + escapePath(clean(p))
	if query != "" {
		u += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	return c.client.Do(req)
}

func clean(p string) string {
	p = path.Clean("/" + strings.TrimSpace(p))
	return strings.TrimPrefix(p, "/")
}

func escapePath(p string) string {
	if p == "" {
		return ""
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func readStatus(resp *http.Response) string {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(bytes.TrimSpace(msg)) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(msg))
}
