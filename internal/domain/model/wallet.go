package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candidate is a freshly derived wallet before any balance check.
// PrivateKey is hex without the 0x prefix; Phrase is the ordered mnemonic.
type Candidate struct {
	Address    string
	PrivateKey string
	Phrase     []string
}

// WalletRecord is the full result of checking one candidate. PrivateKey and
// Phrase are sensitive: they are written to the found log and go nowhere
// else, never into log output or notifications other than the found alert.
type WalletRecord struct {
	Address       string                     `json:"address"`
	PrivateKey    string                     `json:"private_key"`
	Phrase        []string                   `json:"phrase"`
	BalanceUSD    decimal.Decimal            `json:"balance_usd"`
	Coins         map[string]decimal.Decimal `json:"coins"`
	ChainsChecked []string                   `json:"chains_checked"`
	Nonce         uint64                     `json:"nonce"`
	DiscoveredAt  time.Time                  `json:"found_at"`
	CheckFailed   bool                       `json:"check_failed,omitempty"`
	Undelivered   bool                       `json:"undelivered,omitempty"`
}

// Found reports whether the record qualifies as a hit: any positive USD
// valuation or any transaction history.
func (w *WalletRecord) Found() bool {
	return w.BalanceUSD.IsPositive() || w.Nonce > 0
}

// EmptyRecord is the redacted form persisted to the empty log. It keeps the
// address and audit fields and drops all key material.
type EmptyRecord struct {
	Address       string    `json:"address"`
	ChainsChecked []string  `json:"chains_checked"`
	CheckedAt     time.Time `json:"checked_at"`
	CheckFailed   bool      `json:"check_failed,omitempty"`
}

// Redacted derives the empty-log form of the record.
func (w *WalletRecord) Redacted() EmptyRecord {
	return EmptyRecord{
		Address:       w.Address,
		ChainsChecked: w.ChainsChecked,
		CheckedAt:     w.DiscoveredAt,
		CheckFailed:   w.CheckFailed,
	}
}
