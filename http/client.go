package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mark3labs/smartaccount-go"
	"github.com/mark3labs/smartaccount-go/http/internal/helpers"
	"github.com/mark3labs/smartaccount-go/retry"
)

// ErrRelayUnavailable indicates the relay could not be reached or answered
// with a server error after every retry.
var ErrRelayUnavailable = errors.New("relay unavailable")

// APIError is a non-retryable error answered by the relay.
type APIError struct {
	Status int
	helpers.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d: %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps the reported code back to the matching sentinel so callers can
// use errors.Is across the wire.
func (e *APIError) Unwrap() error {
	switch smartaccount.ErrorCode(e.Code) {
	case smartaccount.ErrCodeUnauthorized:
		return smartaccount.ErrUnauthorized
	case smartaccount.ErrCodeInsufficientBalance:
		return smartaccount.ErrInsufficientBalance
	case smartaccount.ErrCodeFailedToSettleFee:
		return smartaccount.ErrFailedToSettleFee
	case smartaccount.ErrCodeInvalidSignature:
		return smartaccount.ErrInvalidSignature
	case smartaccount.ErrCodeExecutionFailed:
		return smartaccount.ErrExecutionFailed
	case smartaccount.ErrCodeMalformedSignature:
		return smartaccount.ErrMalformedSignature
	case smartaccount.ErrCodeNonceMismatch:
		return smartaccount.ErrNonceMismatch
	case smartaccount.ErrCodeValueOverflow:
		return smartaccount.ErrValueOverflow
	case smartaccount.ErrCodeInvalidOperation:
		return smartaccount.ErrInvalidOperation
	}
	switch e.Code {
	case helpers.RevertCode:
		return &smartaccount.RevertError{Data: e.ReturnData}
	case helpers.UnauthenticatedCode:
		return ErrUnauthenticated
	}
	return nil
}

// serverError marks a 5xx answer as retryable.
type serverError struct {
	status int
	body   string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// Client submits operations to a relay serving NewRouter.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
	Timeout    time.Duration
	Logger     *slog.Logger

	// Tokens, when set, supplies the bearer token sent with every request.
	// Controller endpoints reject requests without one.
	Tokens TokenSource
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a relay client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Retry:      retry.DefaultConfig,
		Timeout:    10 * time.Second,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		if httpClient == nil {
			return errors.New("http client cannot be nil")
		}
		c.HTTPClient = httpClient
		return nil
	}
}

// WithRetry sets the retry policy for transport failures and 5xx answers.
func WithRetry(config retry.Config) ClientOption {
	return func(c *Client) error {
		if err := config.Validate(); err != nil {
			return err
		}
		c.Retry = config
		return nil
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		c.Timeout = timeout
		return nil
	}
}

// WithTokenSource authenticates requests as the caller named by src's tokens.
func WithTokenSource(src TokenSource) ClientOption {
	return func(c *Client) error {
		if src == nil {
			return errors.New("token source cannot be nil")
		}
		c.Tokens = src
		return nil
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}

// Validate submits a native validation.
func (c *Client) Validate(ctx context.Context, req NativeRequest) (*ValidateResponse, error) {
	return post[ValidateResponse](ctx, c, PathValidate, req)
}

// SettleFee submits a native push settlement.
func (c *Client) SettleFee(ctx context.Context, req NativeRequest) (*SettleResponse, error) {
	return post[SettleResponse](ctx, c, PathPay, req)
}

// PrepareForFeeSponsor calls the reserved fee sponsor hook.
func (c *Client) PrepareForFeeSponsor(ctx context.Context, req NativeRequest) error {
	_, err := c.send(ctx, http.MethodPost, PathPreparePaymaster, req)
	return err
}

// Execute submits a native dispatch.
func (c *Client) Execute(ctx context.Context, req NativeRequest) (*smartaccount.ExecutionOutcome, error) {
	return post[smartaccount.ExecutionOutcome](ctx, c, PathExecute, req)
}

// ExecuteFromOutside submits an owner-signed transaction without a controller.
func (c *Client) ExecuteFromOutside(ctx context.Context, tx smartaccount.Transaction) (*smartaccount.ExecutionOutcome, error) {
	return post[smartaccount.ExecutionOutcome](ctx, c, PathExecuteFromOutside, ExternalExecutionRequest{Transaction: tx})
}

// ValidateOperation submits an external-controller validation.
func (c *Client) ValidateOperation(ctx context.Context, req ValidateOperationRequest) (*ValidateOperationResponse, error) {
	return post[ValidateOperationResponse](ctx, c, PathValidateOperation, req)
}

// ExecuteOperation submits an external-controller dispatch.
func (c *Client) ExecuteOperation(ctx context.Context, dest common.Address, value *big.Int, data []byte) (*smartaccount.ExecutionOutcome, error) {
	return post[smartaccount.ExecutionOutcome](ctx, c, PathExecuteOperation, ExecuteOperationRequest{
		Dest:  dest,
		Value: value,
		Data:  data,
	})
}

// ExecuteBatch submits a batched dispatch.
func (c *Client) ExecuteBatch(ctx context.Context, calls []smartaccount.Call) (*ExecuteBatchResponse, error) {
	return post[ExecuteBatchResponse](ctx, c, PathExecuteBatch, ExecuteBatchRequest{Calls: calls})
}

// IsValidSignature asks whether the owner signed hash.
func (c *Client) IsValidSignature(ctx context.Context, hash common.Hash, sig []byte) (*SignatureResponse, error) {
	return post[SignatureResponse](ctx, c, PathIsValidSignature, SignatureRequest{Hash: hash, Signature: sig})
}

// Account fetches the account description.
func (c *Client) Account(ctx context.Context) (*AccountResponse, error) {
	body, err := c.send(ctx, http.MethodGet, PathAccount, nil)
	if err != nil {
		return nil, err
	}
	var out AccountResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func post[T any](ctx context.Context, c *Client, path string, payload any) (*T, error) {
	body, err := c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var token string
	if c.Tokens != nil {
		var err error
		if token, err = c.Tokens(ctx); err != nil {
			return nil, fmt.Errorf("caller token: %w", err)
		}
	}

	policy := c.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.Logger.Debug("retrying relay request", "path", path, "attempt", attempt, "delay", delay, "error", err)
	}

	// Per-attempt timeouts are retried; only the caller's context ends the loop.
	isRetryable := func(error) bool { return ctx.Err() == nil }

	body, err := retry.WithRetry(ctx, policy, isRetryable, func() ([]byte, error) {
		body, err := c.attempt(ctx, method, path, token, data)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, retry.Permanent(apiErr)
		}
		return body, err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return body, nil
}

func (c *Client) attempt(ctx context.Context, method, path, token string, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Warn("relay request failed", "path", path, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		c.Logger.Warn("relay server error", "path", path, "status", resp.StatusCode)
		return nil, &serverError{status: resp.StatusCode, body: string(body)}
	case resp.StatusCode >= http.StatusBadRequest:
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, &apiErr.ErrorResponse); err != nil {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return nil, apiErr
	}
	return body, nil
}
