package ethrpc

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/veilproof/riskscope/internal/core/domain"
)

const (
	// Mainnet post-merge block cadence.
	blocksPerDay = 7200

	// Lookback window for the recent-activity and token scans.
	recentWindowDays = 30

	// keccak256("Transfer(address,address,uint256)")
	transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
)

type logEntry struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

// WalletActivity gathers the activity summary behind the scoring pipeline.
// Independent queries run concurrently in two waves: head/nonce/balance
// first, then the scans that depend on the head height.
func (c *Client) WalletActivity(ctx context.Context, walletAddress string) (*domain.ActivitySummary, error) {
	address := strings.ToLower(walletAddress)

	var (
		head    uint64
		nonce   uint64
		balance *hexutil.Big
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		head, err = c.CurrentBlock(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		nonce, err = c.nonceAt(gctx, address, "latest")
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = c.balanceAt(gctx, address)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "collect wallet activity", err)
	}

	var (
		firstSeen uint64
		transfers []logEntry
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		firstSeen, err = c.firstActiveBlock(gctx, address, head, nonce)
		return err
	})
	g.Go(func() error {
		var err error
		transfers, err = c.recentTransfers(gctx, address, head)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, domain.WrapError(domain.ErrUpstream, "collect wallet activity", err)
	}

	return buildSummary(address, head, nonce, balance, firstSeen, transfers), nil
}

// firstActiveBlock binary-searches the block height at which the wallet's
// nonce first became nonzero. O(log head) archive queries.
func (c *Client) firstActiveBlock(ctx context.Context, address string, head, nonce uint64) (uint64, error) {
	if nonce == 0 {
		return 0, nil
	}
	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		n, err := c.nonceAt(ctx, address, hexutil.EncodeUint64(mid))
		if err != nil {
			return 0, err
		}
		if n > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo, nil
}

// recentTransfers scans the lookback window for token transfers touching the
// wallet on either side.
func (c *Client) recentTransfers(ctx context.Context, address string, head uint64) ([]logEntry, error) {
	from := uint64(0)
	if window := uint64(recentWindowDays * blocksPerDay); head > window {
		from = head - window
	}
	padded := paddedTopic(address)

	var outbound, inbound []logEntry
	filterBase := map[string]any{
		"fromBlock": hexutil.EncodeUint64(from),
		"toBlock":   "latest",
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filter := map[string]any{"topics": []any{transferTopic, padded}}
		for k, v := range filterBase {
			filter[k] = v
		}
		return c.call(gctx, "eth_getLogs", []any{filter}, &outbound)
	})
	g.Go(func() error {
		filter := map[string]any{"topics": []any{transferTopic, nil, padded}}
		for k, v := range filterBase {
			filter[k] = v
		}
		return c.call(gctx, "eth_getLogs", []any{filter}, &inbound)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(outbound, inbound...), nil
}

func buildSummary(address string, head, nonce uint64, balance *hexutil.Big, firstSeen uint64, transfers []logEntry) *domain.ActivitySummary {
	ageDays := 0
	if nonce > 0 && head > firstSeen {
		ageDays = int((head - firstSeen) / blocksPerDay)
	}

	txPerDay := 0.0
	if ageDays > 0 {
		txPerDay = float64(nonce) / float64(ageDays)
	} else {
		txPerDay = float64(nonce)
	}

	tokens := make(map[string]struct{}, len(transfers))
	outboundTokenTx := 0
	paddedSelf := paddedTopic(address)
	for _, entry := range transfers {
		tokens[strings.ToLower(entry.Address)] = struct{}{}
		if len(entry.Topics) > 1 && strings.EqualFold(entry.Topics[1], paddedSelf) {
			outboundTokenTx++
		}
	}

	contractRatio := 0.0
	if nonce > 0 {
		contractRatio = float64(outboundTokenTx) / float64(nonce)
		if contractRatio > 1 {
			contractRatio = 1
		}
	}

	return &domain.ActivitySummary{
		TotalTransactions: nonce,
		BalanceETH:        weiToEth(balance),
		FirstSeenBlock:    firstSeen,
		WalletAgeDays:     ageDays,
		TxPerDay:          txPerDay,
		RecentTxCount:     len(transfers),
		UniqueTokens:      len(tokens),
		ContractTxRatio:   contractRatio,
		IsContractUser:    len(tokens) > 0,
	}
}

func paddedTopic(address string) string {
	return "0x000000000000000000000000" + strings.TrimPrefix(strings.ToLower(common.HexToAddress(address).Hex()), "0x")
}

func weiToEth(wei *hexutil.Big) float64 {
	if wei == nil {
		return 0
	}
	f := new(big.Float).SetInt(wei.ToInt())
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
