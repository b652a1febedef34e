package evm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/retry"
)

type fakeReader struct {
	balance *big.Int
	nonce   uint64
	err     error
	closed  bool
}

func (f *fakeReader) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeReader) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.nonce, nil
}

func (f *fakeReader) Close() { f.closed = true }

func newFakeClient(readers map[model.Chain]chainReader) *Client {
	return &Client{
		readers:     readers,
		callTimeout: time.Second,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func wei(coins string) *big.Int {
	d := decimal.RequireFromString(coins).Shift(18)
	return d.BigInt()
}

func TestCheck_AggregatesNativeBalances(t *testing.T) {
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainEthereum: &fakeReader{balance: wei("1.5"), nonce: 0},
		model.ChainBSC:      &fakeReader{balance: big.NewInt(0), nonce: 7},
	})

	chains := []model.Chain{model.ChainEthereum, model.ChainBSC}
	result, err := client.Check(context.Background(), "0x9858EfFD232B4033E47d90003D41EC34EcaEda94", chains)
	require.NoError(t, err)

	assert.Equal(t, chains, result.ChainsChecked)
	assert.Equal(t, uint64(7), result.Nonce)
	require.Len(t, result.Coins, 1)
	assert.True(t, decimal.RequireFromString("1.5").Equal(result.Coins["ETH"]), "got %s", result.Coins["ETH"])
	assert.True(t, result.HasValue())
}

func TestCheck_SkipsUnconfiguredChains(t *testing.T) {
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainEthereum: &fakeReader{balance: big.NewInt(0), nonce: 0},
	})

	result, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum, model.ChainPolygon})
	require.NoError(t, err)
	assert.Equal(t, []model.Chain{model.ChainEthereum}, result.ChainsChecked)
	assert.False(t, result.HasValue())
}

func TestCheck_PartialChainFailureStillSucceeds(t *testing.T) {
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainEthereum: &fakeReader{err: errors.New("connection refused")},
		model.ChainBSC:      &fakeReader{balance: wei("0.25"), nonce: 2},
	})

	result, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum, model.ChainBSC})
	require.NoError(t, err)
	assert.Equal(t, []model.Chain{model.ChainBSC}, result.ChainsChecked)
	assert.True(t, decimal.RequireFromString("0.25").Equal(result.Coins["BNB"]))
	assert.Equal(t, uint64(2), result.Nonce)
}

func TestCheck_AllChainsFailedIsError(t *testing.T) {
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainEthereum: &fakeReader{err: errors.New("connection refused")},
		model.ChainBSC:      &fakeReader{err: errors.New("connection reset by peer")},
	})

	_, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum, model.ChainBSC})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all rpc chains failed")
	assert.True(t, retry.Classify(err).IsTransient())
}

func TestChainsReportsCanonicalOrder(t *testing.T) {
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainBase:     &fakeReader{balance: big.NewInt(0)},
		model.ChainEthereum: &fakeReader{balance: big.NewInt(0)},
	})

	assert.Equal(t, []model.Chain{model.ChainEthereum, model.ChainBase}, client.Chains())
}

func TestClose_ClosesEveryReader(t *testing.T) {
	eth := &fakeReader{balance: big.NewInt(0)}
	bsc := &fakeReader{balance: big.NewInt(0)}
	client := newFakeClient(map[model.Chain]chainReader{
		model.ChainEthereum: eth,
		model.ChainBSC:      bsc,
	})

	client.Close()
	assert.True(t, eth.closed)
	assert.True(t, bsc.closed)
}

func TestNew_ErrorsWhenNothingDialable(t *testing.T) {
	_, err := New(context.Background(), Config{
		RPCURLs: map[model.Chain]string{model.ChainEthereum: "://not-a-url"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rpc endpoint reachable")
}
