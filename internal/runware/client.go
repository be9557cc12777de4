// Package runware is a small HTTP client for the Runware image API: one
// request per task batch, no retries, deadlines carried by context.
package runware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portraitd/pkg/types"
)

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://api.runware.ai/v1"

const (
	taskAuthentication    = "authentication"
	taskImageInference    = "imageInference"
	taskBackgroundRemoval = "imageBackgroundRemoval"
)

// ErrNoAPIKey is returned when a call is attempted without credentials.
var ErrNoAPIKey = errors.New("runware: api key not configured")

// APIError carries an error reported by the remote service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("runware: %s (%s)", e.Message, e.Code)
	}
	return "runware: " + e.Message
}

// IsAPIError reports whether err came from the remote service.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Client talks to the Runware REST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	reqTimeout time.Duration
	httpClient *http.Client
	log        zerolog.Logger
	newTaskID  func() string
}

// New returns a Client with a tuned transport.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Timeout stays 0; every call applies reqTimeout through its context.
	return &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		reqTimeout: cfg.RequestTimeout,
		httpClient: &http.Client{Transport: tr, Timeout: 0},
		log:        cfg.Logger,
		newTaskID:  uuid.NewString,
	}
}

// WithAPIKey returns a copy of c using key. The transport is shared.
func (c *Client) WithAPIKey(key string) *Client {
	cp := *c
	cp.apiKey = key
	return &cp
}

type authTask struct {
	TaskType string `json:"taskType"`
	APIKey   string `json:"apiKey"`
}

type inferenceTask struct {
	TaskType string `json:"taskType"`
	TaskUUID string `json:"taskUUID"`
	types.GenerationRequest
}

type backgroundTask struct {
	TaskType string `json:"taskType"`
	TaskUUID string `json:"taskUUID"`
	types.BackgroundRemovalRequest
}

type dataItem struct {
	TaskType string `json:"taskType"`
	types.ImageResult
}

type remoteError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Parameter string `json:"parameter,omitempty"`
}

type envelope struct {
	Data   []dataItem    `json:"data"`
	Errors []remoteError `json:"errors"`
}

// RequestImages runs one image inference task and returns every image produced.
func (c *Client) RequestImages(ctx context.Context, req types.GenerationRequest) ([]types.ImageResult, error) {
	task := inferenceTask{TaskType: taskImageInference, TaskUUID: c.newTaskID(), GenerationRequest: req}
	c.log.Debug().
		Str("task", task.TaskUUID).
		Str("model", req.Model).
		Int("width", req.Width).
		Int("height", req.Height).
		Int("results", req.NumberResults).
		Msg("runware image inference")
	items, err := c.run(ctx, task)
	if err != nil {
		return nil, err
	}
	return results(items, taskImageInference, task.TaskUUID), nil
}

// RemoveBackground runs one background removal task. The service may answer
// with one or several records; the first one for this task is returned.
func (c *Client) RemoveBackground(ctx context.Context, req types.BackgroundRemovalRequest) (types.ImageResult, error) {
	if req.OutputType == "" {
		req.OutputType = types.OutputTypeBase64
	}
	if req.OutputFormat == "" {
		req.OutputFormat = types.OutputFormatPNG
	}
	task := backgroundTask{TaskType: taskBackgroundRemoval, TaskUUID: c.newTaskID(), BackgroundRemovalRequest: req}
	c.log.Debug().Str("task", task.TaskUUID).Msg("runware background removal")
	items, err := c.run(ctx, task)
	if err != nil {
		return types.ImageResult{}, err
	}
	out := results(items, taskBackgroundRemoval, task.TaskUUID)
	if len(out) == 0 {
		return types.ImageResult{}, &APIError{Status: http.StatusOK, Message: "background removal returned no image"}
	}
	return out[0], nil
}

func results(items []dataItem, taskType, taskUUID string) []types.ImageResult {
	out := make([]types.ImageResult, 0, len(items))
	for _, it := range items {
		if it.TaskType == taskAuthentication {
			continue
		}
		if it.TaskType != "" && it.TaskType != taskType {
			continue
		}
		if it.TaskUUID != "" && it.TaskUUID != taskUUID {
			continue
		}
		out = append(out, it.ImageResult)
	}
	return out
}

func (c *Client) run(ctx context.Context, task any) ([]dataItem, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if c.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.reqTimeout)
		defer cancel()
	}
	body, err := json.Marshal([]any{authTask{TaskType: taskAuthentication, APIKey: c.apiKey}, task})
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("runware request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read runware response: %w", err)
	}
	c.log.Debug().Int("status", resp.StatusCode).Dur("dur", time.Since(start)).Msg("runware response")

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if len(env.Errors) > 0 {
		e := env.Errors[0]
		msg := e.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, &APIError{Status: resp.StatusCode, Code: e.Code, Message: msg}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Message: resp.Status + ": " + snippet(raw)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode runware response: %w", decodeErr)
	}
	return env.Data, nil
}

func snippet(b []byte) string {
	const max = 4096
	if len(b) > max {
		b = b[:max]
	}
	return strings.TrimSpace(string(b))
}
