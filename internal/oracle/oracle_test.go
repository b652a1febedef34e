package oracle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

func TestCheckResult_HasValue(t *testing.T) {
	assert.False(t, NewCheckResult().HasValue())

	withUSD := NewCheckResult()
	withUSD.BalanceUSD = decimal.RequireFromString("0.01")
	assert.True(t, withUSD.HasValue())

	withNonce := NewCheckResult()
	withNonce.Nonce = 2
	assert.True(t, withNonce.HasValue())
}

func TestCheckResult_Merge(t *testing.T) {
	base := NewCheckResult()
	base.BalanceUSD = decimal.NewFromInt(10)
	base.Coins["ETH"] = decimal.RequireFromString("0.5")
	base.ChainsChecked = []model.Chain{model.ChainEthereum}
	base.Nonce = 1

	other := NewCheckResult()
	other.BalanceUSD = decimal.NewFromInt(5)
	other.Coins["ETH"] = decimal.RequireFromString("0.25")
	other.Coins["BNB"] = decimal.NewFromInt(3)
	other.ChainsChecked = []model.Chain{model.ChainEthereum, model.ChainBSC}
	other.Nonce = 7

	base.Merge(other)

	assert.True(t, decimal.NewFromInt(15).Equal(base.BalanceUSD))
	assert.True(t, decimal.RequireFromString("0.75").Equal(base.Coins["ETH"]))
	assert.True(t, decimal.NewFromInt(3).Equal(base.Coins["BNB"]))
	assert.Equal(t, []model.Chain{model.ChainEthereum, model.ChainBSC}, base.ChainsChecked)
	assert.Equal(t, uint64(7), base.Nonce)
}

func TestCheckResult_MergeNil(t *testing.T) {
	base := NewCheckResult()
	base.Nonce = 3
	base.Merge(nil)
	assert.Equal(t, uint64(3), base.Nonce)
}

func TestCheckResult_MergeIntoNilCoins(t *testing.T) {
	base := &CheckResult{}
	other := NewCheckResult()
	other.Coins["MATIC"] = decimal.NewFromInt(4)

	base.Merge(other)
	assert.True(t, decimal.NewFromInt(4).Equal(base.Coins["MATIC"]))
}
