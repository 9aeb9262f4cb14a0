package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/quorum-sim/generals/internal/domain"
	"github.com/quorum-sim/generals/internal/infra/metrics"
)

// Client calls other generals over HTTP. It implements domain.AdminClient.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

var _ domain.AdminClient = (*Client)(nil)

// NewClient creates a client whose calls each give up after timeout.
// Zero means no per-call bound beyond the caller's context.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		timeout: timeout,
	}
}

// call sends one request to the general at addr and decodes the result
// into out. Transport failures come back as *domain.UnreachableError.
func (c *Client) call(ctx context.Context, addr, method string, params, out any) error {
	start := time.Now()
	defer func() {
		metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      uuid.New().String()[:8],
		Method:  method,
	}
	if params != nil {
		p, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = p
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+"/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.PeersUnreachable.Inc()
		return &domain.UnreachableError{Address: addr, Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBody))
	if err != nil {
		metrics.PeersUnreachable.Inc()
		return &domain.UnreachableError{Address: addr, Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s on %s: http %d", method, addr, httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error.AsError()
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// ─── domain.PeerClient ──────────────────────────────────────────────────────

func (c *Client) GetState(ctx context.Context, addr string) (string, error) {
	var r reportResult
	err := c.call(ctx, addr, MethodGetState, nil, &r)
	return r.Report, err
}

func (c *Client) SetState(ctx context.Context, addr string, id int, state domain.FaultState) (string, error) {
	var r reportResult
	err := c.call(ctx, addr, MethodSetState, setStateParams{ID: id, State: state}, &r)
	return r.Report, err
}

func (c *Client) SetNeighbours(ctx context.Context, addr string, m domain.Membership) error {
	return c.call(ctx, addr, MethodSetNeighbours, setNeighboursParams{Epoch: m.Epoch, Members: m.Members}, nil)
}

func (c *Client) SetPrimary(ctx context.Context, addr string, id int) (string, error) {
	var r setPrimaryResult
	err := c.call(ctx, addr, MethodSetPrimary, idParams{ID: id}, &r)
	return r.Report, err
}

func (c *Client) SetPrimaryOrder(ctx context.Context, addr string, order domain.Order) (bool, error) {
	var r okResult
	err := c.call(ctx, addr, MethodSetPrimaryOrder, orderParams{Order: order}, &r)
	return r.OK, err
}

func (c *Client) QueryNeighbours(ctx context.Context, addr string) (domain.Vote, error) {
	var r voteResult
	err := c.call(ctx, addr, MethodQueryNeighbours, nil, &r)
	return domain.Vote{State: r.State, Majority: r.Majority}, err
}

func (c *Client) GetOrder(ctx context.Context, addr string) (domain.Order, error) {
	var r orderResult
	err := c.call(ctx, addr, MethodGetOrder, nil, &r)
	return r.Order, err
}

// ─── domain.AdminClient ─────────────────────────────────────────────────────

func (c *Client) GetFreeNeighbourIDs(ctx context.Context, addr string, n int) ([]int, error) {
	var r idsResult
	err := c.call(ctx, addr, MethodGetFreeNeighbourIDs, countParams{N: n}, &r)
	return r.IDs, err
}

func (c *Client) AddNeighbours(ctx context.Context, addr string, ids []int) (string, error) {
	var r reportResult
	err := c.call(ctx, addr, MethodAddNeighbours, idsParams{IDs: ids}, &r)
	return r.Report, err
}

func (c *Client) RemoveNeighbour(ctx context.Context, addr string, id int) (string, error) {
	var r reportResult
	err := c.call(ctx, addr, MethodRemoveNeighbour, idParams{ID: id}, &r)
	return r.Report, err
}

func (c *Client) ExecuteOrder(ctx context.Context, addr string, order domain.Order) (string, error) {
	var r reportResult
	err := c.call(ctx, addr, MethodExecuteOrder, orderParams{Order: order}, &r)
	return r.Report, err
}

// Health reports whether the general at addr answers its readiness probe.
func (c *Client) Health(ctx context.Context, addr string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.UnreachableError{Address: addr, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health %s: http %d", addr, resp.StatusCode)
	}
	return nil
}
