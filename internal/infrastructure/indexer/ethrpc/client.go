// Package ethrpc collects on-chain wallet activity over plain JSON-RPC.
// Wallet addresses pass through in memory only; nothing here persists or
// logs them unredacted.
package ethrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/veilproof/riskscope/internal/core/domain"
	"github.com/veilproof/riskscope/internal/infrastructure/resilience"
)

const rpcCallTimeout = 30 * time.Second

type Client struct {
	endpoint string
	http     *http.Client
	exec     *resilience.Executor
	nextID   atomic.Uint64
}

func New(endpoint string, exec *resilience.Executor) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: rpcCallTimeout},
		exec:     exec,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// classify marks transport-level failures retryable; a definitive RPC error
// reply is not going to change on retry.
func classify(err error) resilience.ErrorClassification {
	var rpcErr *rpcError
	if ok := asRPCError(err, &rpcErr); ok {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
}

func asRPCError(err error, target **rpcError) bool {
	for err != nil {
		if e, ok := err.(*rpcError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	return c.exec.Execute(ctx, "chain_rpc", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
		}

		var out rpcResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode %s response: %w", method, err)
		}
		if out.Error != nil {
			return fmt.Errorf("%s: %w", method, out.Error)
		}
		if result != nil {
			if err := json.Unmarshal(out.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	}, classify)
}

// CurrentBlock returns the chain head height.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	var head hexutil.Uint64
	if err := c.call(ctx, "eth_blockNumber", []any{}, &head); err != nil {
		return 0, domain.WrapError(domain.ErrUpstream, "fetch current block", err)
	}
	return uint64(head), nil
}

func (c *Client) nonceAt(ctx context.Context, address, block string) (uint64, error) {
	var nonce hexutil.Uint64
	if err := c.call(ctx, "eth_getTransactionCount", []any{address, block}, &nonce); err != nil {
		return 0, err
	}
	return uint64(nonce), nil
}

func (c *Client) balanceAt(ctx context.Context, address string) (*hexutil.Big, error) {
	var balance hexutil.Big
	if err := c.call(ctx, "eth_getBalance", []any{address, "latest"}, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}
