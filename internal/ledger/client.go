package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Ledger call errors.
var (
	// ErrUnreachable is returned when the ledger cannot be contacted within
	// the call timeout. A timed-out call is treated identically.
	ErrUnreachable = errors.New("ledger unreachable")
)

// RejectedError is returned when the ledger accepted the submission but
// reverted or failed the transaction.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ledger rejected transaction: %s", e.Reason)
}

// Client is the narrow contract to the external authoritative ledger.
type Client interface {
	// SubmitTransaction submits a write call and returns its receipt.
	// Unreachable or timed-out ledgers surface ErrUnreachable; reverted
	// transactions surface *RejectedError. There is no automatic retry.
	SubmitTransaction(ctx context.Context, call WriteCall) (*Receipt, error)

	// ReadView executes a read view and returns its typed result.
	ReadView(ctx context.Context, call ViewCall) (ViewResult, error)

	// IsReachable reports whether the ledger answered a liveness probe.
	IsReachable(ctx context.Context) bool
}

// Default timeouts. The call timeout must stay short so a dead ledger
// degrades the write path instead of stalling it.
const (
	DefaultCallTimeout  = 3 * time.Second
	DefaultProbeTimeout = 750 * time.Millisecond
)

// HTTPClient implements Client over the ledger node's JSON RPC surface.
type HTTPClient struct {
	baseURL      string
	httpClient   *http.Client
	probeTimeout time.Duration
	metrics      *Metrics
}

// HTTPClientConfig holds configuration for the HTTP ledger client.
type HTTPClientConfig struct {
	BaseURL      string
	CallTimeout  time.Duration
	ProbeTimeout time.Duration
	Metrics      *Metrics
}

// NewHTTPClient creates a ledger client against the given base URL.
// Outbound requests are instrumented with otelhttp.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ledger base URL is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.CallTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		probeTimeout: cfg.ProbeTimeout,
		metrics:      cfg.Metrics,
	}, nil
}

// rpcRequest is the wire envelope for both writes and views.
type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

// rpcResponse is the wire envelope of a ledger reply. Token is present for
// writes only; Result is decoded per call type.
type rpcResponse struct {
	Token  string          `json:"token,omitempty"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// SubmitTransaction submits a write call and decodes its typed result.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, call WriteCall) (*Receipt, error) {
	method := call.method()
	resp, err := c.post(ctx, "/v1/transactions", rpcRequest{Method: method, Params: call})
	if err != nil {
		c.metrics.observeSubmit(method, outcomeUnreachable)
		return nil, err
	}
	if resp.Error != "" {
		c.metrics.observeSubmit(method, outcomeRejected)
		return nil, &RejectedError{Reason: resp.Error}
	}

	result, err := decodeWriteResult(call, resp.Result)
	if err != nil {
		c.metrics.observeSubmit(method, outcomeRejected)
		return nil, err
	}
	c.metrics.observeSubmit(method, outcomeSettled)
	return &Receipt{Token: resp.Token, Result: result}, nil
}

// ReadView executes a read view and decodes its typed result.
func (c *HTTPClient) ReadView(ctx context.Context, call ViewCall) (ViewResult, error) {
	resp, err := c.post(ctx, "/v1/views", rpcRequest{Method: call.view(), Params: call})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &RejectedError{Reason: resp.Error}
	}
	return decodeViewResult(call, resp.Result)
}

// IsReachable probes the ledger's health endpoint with a short deadline.
// The probe deadline is independent of the call timeout so a slow ledger
// call cannot block liveness checks.
func (c *HTTPClient) IsReachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.observeProbe(false)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode == http.StatusOK
	c.metrics.observeProbe(ok)
	return ok
}

func (c *HTTPClient) post(ctx context.Context, path string, body rpcRequest) (*rpcResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connection failures and timeouts are both "unreachable".
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode ledger response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 && decoded.Error == "" {
		decoded.Error = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return &decoded, nil
}

// decodeWriteResult decodes the raw result into the tagged type for the call.
func decodeWriteResult(call WriteCall, raw json.RawMessage) (WriteResult, error) {
	switch call.(type) {
	case ProposeRegistration:
		var r ProposeResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode propose result: %w", err)
		}
		return r, nil
	case CastVote:
		var r VoteResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode vote result: %w", err)
		}
		return r, nil
	case GrantConsent:
		var r GrantResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode grant result: %w", err)
		}
		return r, nil
	default:
		return Ack{}, nil
	}
}

// decodeViewResult decodes the raw result into the tagged type for the view.
func decodeViewResult(call ViewCall, raw json.RawMessage) (ViewResult, error) {
	switch call.(type) {
	case MemberCount:
		var r MemberCountResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode member count: %w", err)
		}
		return r, nil
	case ProposalView:
		var r ProposalState
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode proposal view: %w", err)
		}
		return r, nil
	case ConsentView:
		var r ConsentState
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode consent view: %w", err)
		}
		return r, nil
	case RecordView:
		var r RecordState
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode record view: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported view call %T", call)
	}
}
