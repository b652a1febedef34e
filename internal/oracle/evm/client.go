package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/oracle"
)

const source = "evm"

// weiExponent converts native-unit wei into whole coins.
const weiExponent = -18

// chainReader is the slice of ethclient.Client the balance path needs.
type chainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	Close()
}

// Client reads native balances and transaction nonces straight from JSON-RPC
// endpoints, one per chain. Chains whose endpoint cannot be dialed are
// skipped at construction; chains that fail a call are skipped per check and
// the check only errors when every requested chain failed.
type Client struct {
	readers     map[model.Chain]chainReader
	callTimeout time.Duration
	limiter     *oracle.Limiter
	logger      *slog.Logger
}

type Config struct {
	RPCURLs        map[model.Chain]string
	CallTimeout    time.Duration
	RequestsPerSec float64
	Burst          int
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	c := &Client{
		readers:     make(map[model.Chain]chainReader, len(cfg.RPCURLs)),
		callTimeout: callTimeout,
		limiter:     oracle.NewLimiter(cfg.RequestsPerSec, cfg.Burst, source),
		logger:      logger.With("component", "oracle.evm"),
	}
	for chain, rawURL := range cfg.RPCURLs {
		reader, err := ethclient.DialContext(ctx, rawURL)
		if err != nil {
			c.logger.Warn("rpc dial failed, chain skipped", "chain", chain, "error", err)
			continue
		}
		c.readers[chain] = reader
	}
	if len(c.readers) == 0 {
		return nil, fmt.Errorf("no rpc endpoint reachable out of %d configured", len(cfg.RPCURLs))
	}
	return c, nil
}

// Chains reports the configured chains in canonical order.
func (c *Client) Chains() []model.Chain {
	chains := make([]model.Chain, 0, len(c.readers))
	for _, chain := range model.AllChains {
		if _, ok := c.readers[chain]; ok {
			chains = append(chains, chain)
		}
	}
	return chains
}

func (c *Client) Close() {
	for _, reader := range c.readers {
		reader.Close()
	}
}

func (c *Client) Check(ctx context.Context, address string, chains []model.Chain) (*oracle.CheckResult, error) {
	addr := common.HexToAddress(address)
	result := oracle.NewCheckResult()

	var errs []error
	answered := 0
	for _, chain := range chains {
		reader, ok := c.readers[chain]
		if !ok {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		balance, nonce, err := c.query(ctx, reader, chain, addr)
		if err != nil {
			c.logger.Debug("chain query failed", "chain", chain, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", chain, err))
			continue
		}
		answered++
		result.ChainsChecked = append(result.ChainsChecked, chain)
		if nonce > result.Nonce {
			result.Nonce = nonce
		}
		if balance.Sign() > 0 {
			sym := chain.NativeSymbol()
			result.Coins[sym] = result.Coins[sym].Add(decimal.NewFromBigInt(balance, weiExponent))
		}
	}

	if answered == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all rpc chains failed: %w", errors.Join(errs...))
	}
	return result, nil
}

func (c *Client) query(ctx context.Context, reader chainReader, chain model.Chain, addr common.Address) (*big.Int, uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	label := source + "_" + chain.String()

	start := time.Now()
	balance, err := reader.BalanceAt(callCtx, addr, nil)
	oracle.RecordCall(label, err, time.Since(start))
	if err != nil {
		return nil, 0, fmt.Errorf("balance: %w", err)
	}

	start = time.Now()
	nonce, err := reader.NonceAt(callCtx, addr, nil)
	oracle.RecordCall(label, err, time.Since(start))
	if err != nil {
		return nil, 0, fmt.Errorf("nonce: %w", err)
	}
	return balance, nonce, nil
}
