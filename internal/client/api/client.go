// Package api is the HTTP and websocket client of the syncspace server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// StatusError ответ сервера с кодом вне 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	token      string
	mu         sync.RWMutex
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// SetAccessToken sets the bearer token sent with every request
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Pull requests the next batch of a stream after req.Cursor
func (c *Client) Pull(ctx context.Context, req api.PullRequest) (*api.PullResponse, error) {
	query := url.Values{}
	query.Set("cursor", strconv.FormatInt(req.Cursor, 10))
	if req.Limit > 0 {
		query.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.RootID != "" {
		query.Set("root_id", req.RootID)
	}

	path := "/api/v1/sync/" + url.PathEscape(req.Stream) + "?" + query.Encode()

	var resp api.PullResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("pull %s failed: %w", req.Stream, err)
	}
	return &resp, nil
}

// SubmitMutations sends a batch of mutations and returns per-mutation results
func (c *Client) SubmitMutations(ctx context.Context, mutations []api.Mutation) (*api.MutationsResponse, error) {
	var resp api.MutationsResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/mutations", api.MutationsRequest{Mutations: mutations}, &resp)
	if err != nil {
		return nil, fmt.Errorf("submit mutations failed: %w", err)
	}
	return &resp, nil
}

// CreateFile registers file metadata under a node
func (c *Client) CreateFile(ctx context.Context, req api.CreateFileRequest) (*models.File, error) {
	var file models.File
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/files", req, &file); err != nil {
		return nil, fmt.Errorf("create file failed: %w", err)
	}
	return &file, nil
}

// Listen connects to the event feed and calls fn for every notice until ctx
// is cancelled or the connection drops.
func (c *Client) Listen(ctx context.Context, fn func(api.StreamNotice)) error {
	wsURL, err := c.websocketURL("/api/v1/events")
	if err != nil {
		return err
	}

	header := http.Header{}
	if token := c.accessToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return &StatusError{StatusCode: resp.StatusCode, Message: err.Error()}
		}
		return fmt.Errorf("failed to connect to event feed: %w", err)
	}

	// Закрываем соединение при отмене контекста, чтобы разблокировать чтение
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer func() {
		_ = conn.Close()
	}()

	for {
		var notice api.StreamNotice
		if err := conn.ReadJSON(&notice); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event feed closed: %w", err)
		}
		fn(notice)
	}
}

// websocketURL переводит http(s) адрес сервера в ws(s)
func (c *Client) websocketURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.accessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			statusErr.Message = errResp.Error
		}
		return statusErr
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
