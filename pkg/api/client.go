// Package api provides the HTTP client for the cloud storage backend,
// including response normalization and the shared error taxonomy.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/bycloud/cloudpilot/internal/logging"
	"github.com/bycloud/cloudpilot/internal/metrics"
	"github.com/bycloud/cloudpilot/pkg/retry"
)

// TokenSource supplies the current bearer token. An empty string means
// no credential is available.
type TokenSource interface {
	Token() string
}

// Client talks to the v1 storage API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryPolicy retry.Policy
	tokens      TokenSource
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryPolicy retry.Policy
	Tokens      TokenSource
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryPolicy: cfg.RetryPolicy,
		tokens:      cfg.Tokens,
	}
}

// applyAuth adds the bearer header to a request if a token is available.
// The token source is consulted per request, not cached, so a login or
// logout that happened since the last call is always picked up.
func (c *Client) applyAuth(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// call issues one request with retries. The body, if any, is a byte
// slice so every attempt replays it from the start. Network errors and
// 5xx responses are transient; context cancellation never is.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body []byte, contentType string, out any) error {
	return retry.Do(ctx, c.retryPolicy, func() error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		c.applyAuth(req)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logging.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		metrics.RecordAPIRequest(method, path, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 500 {
			return retry.Transient(decodeResponse(resp, nil))
		}
		return decodeResponse(resp, out)
	})
}

func (c *Client) callJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.call(ctx, method, path, query, body, "application/json", out)
}

// Login authenticates with email/password and returns a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	var pair TokenPair
	err := c.callJSON(ctx, http.MethodPost, "/v1/auth/login", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &pair)
	metrics.RecordAuthAttempt(err == nil)
	if err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("login response carried no access token")
	}
	return &pair, nil
}

// Register creates an account and returns a token pair.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*TokenPair, error) {
	var pair TokenPair
	err := c.callJSON(ctx, http.MethodPost, "/v1/auth/registration", nil, req, &pair)
	metrics.RecordAuthAttempt(err == nil)
	if err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("registration response carried no access token")
	}
	return &pair, nil
}

// Me fetches the identity record for the current bearer token.
func (c *Client) Me(ctx context.Context) (*Identity, error) {
	var ident Identity
	if err := c.call(ctx, http.MethodGet, "/v1/auth/me", nil, nil, "", &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// Logout revokes the token server-side. Best effort: the local session
// is torn down regardless, so failures are logged and swallowed.
func (c *Client) Logout(ctx context.Context) {
	if err := c.call(ctx, http.MethodPost, "/v1/auth/logout", nil, nil, "", nil); err != nil {
		logging.Warn("server logout failed", zap.Error(err))
	}
}

// ListFiles fetches one page of the file listing for a directory.
// An empty directoryID means the root.
func (c *Client) ListFiles(ctx context.Context, userID, directoryID string, limit, offset int) (*FilePage, error) {
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if directoryID != "" {
		q.Set("directoryId", directoryID)
	}

	var page FilePage
	if err := c.call(ctx, http.MethodGet, "/v1/files", q, nil, "", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UploadPart is a single file in a multipart upload.
type UploadPart struct {
	Name        string
	Content     []byte
	ContentType string // detected from content when empty
}

// UploadFiles uploads one or more files into a directory in a single
// multipart request (repeatable "files" field).
func (c *Client) UploadFiles(ctx context.Context, userID, directoryID string, parts []UploadPart) (*UploadResult, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	var total int64
	for _, p := range parts {
		ct := p.ContentType
		if ct == "" {
			ct = mimetype.Detect(p.Content).String()
		}
		hdr := textprotoHeader(p.Name, ct)
		fw, err := w.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		if _, err := fw.Write(p.Content); err != nil {
			return nil, fmt.Errorf("build multipart body: %w", err)
		}
		total += int64(len(p.Content))
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	q := url.Values{}
	q.Set("userId", userID)
	if directoryID != "" {
		q.Set("directoryId", directoryID)
	}

	var result UploadResult
	if err := c.call(ctx, http.MethodPost, "/v1/files", q, buf.Bytes(), w.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	metrics.RecordUploadBytes(total)
	return &result, nil
}

// DeleteFile removes a file by id.
func (c *Client) DeleteFile(ctx context.Context, id string) (*DeleteResult, error) {
	var result DeleteResult
	if err := c.call(ctx, http.MethodDelete, "/v1/files/"+url.PathEscape(id), nil, nil, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListDirectories fetches the folder listing under a parent.
// An empty parentID means the root.
func (c *Client) ListDirectories(ctx context.Context, userID, parentID string) (*DirectoryPage, error) {
	q := url.Values{}
	q.Set("userId", userID)
	if parentID != "" {
		q.Set("parentId", parentID)
	}

	var page DirectoryPage
	if err := c.call(ctx, http.MethodGet, "/v1/directories", q, nil, "", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateDirectory creates a folder and returns its id.
func (c *Client) CreateDirectory(ctx context.Context, userID, parentID, name string) (string, error) {
	payload := map[string]string{
		"userId": userID,
		"name":   name,
	}
	if parentID != "" {
		payload["parentId"] = parentID
	}

	var created DirectoryCreated
	if err := c.callJSON(ctx, http.MethodPost, "/v1/directories", nil, payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// DeleteDirectory removes a folder by id. Descendants are deleted
// transitively by the backend.
func (c *Client) DeleteDirectory(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/v1/directories/"+url.PathEscape(id), nil, nil, "", nil)
}

// textprotoHeader builds the part header for one uploaded file. The
// stock CreateFormFile helper pins the part content type to
// octet-stream, and the backend uses the declared type as the stored
// mimeType, so the header is built by hand.
func textprotoHeader(filename, contentType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
