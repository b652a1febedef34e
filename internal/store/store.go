// Package store defines where scan results land. Implementations append to
// local JSON-line logs, a Postgres archive, or both through a fanout.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

// ResultStore persists scan results. SaveFound receives the only copies of
// key material the scanner ever writes; SaveEmpty receives pre-redacted
// records by construction.
type ResultStore interface {
	SaveFound(ctx context.Context, rec model.WalletRecord) error
	SaveEmpty(ctx context.Context, rec model.EmptyRecord) error
}

// FoundSummary is the sanitized view of a found wallet served outside the
// result logs. It carries no key material by construction: stores build it
// by dropping the private key and phrase, never by copying them.
type FoundSummary struct {
	Address       string                     `json:"address"`
	BalanceUSD    decimal.Decimal            `json:"balance_usd"`
	Coins         map[string]decimal.Decimal `json:"coins,omitempty"`
	ChainsChecked []string                   `json:"chains_checked,omitempty"`
	Nonce         uint64                     `json:"nonce"`
	FoundAt       time.Time                  `json:"found_at"`
	Undelivered   bool                       `json:"undelivered,omitempty"`
}

// SummaryOf strips a found record down to its servable fields.
func SummaryOf(rec model.WalletRecord) FoundSummary {
	return FoundSummary{
		Address:       rec.Address,
		BalanceUSD:    rec.BalanceUSD,
		Coins:         rec.Coins,
		ChainsChecked: rec.ChainsChecked,
		Nonce:         rec.Nonce,
		FoundAt:       rec.DiscoveredAt,
		Undelivered:   rec.Undelivered,
	}
}

// Fanout writes every record to all sinks. A failing sink never stops the
// others; the joined error is reported so the caller can count the run as
// degraded without losing the copies that did land.
type Fanout struct {
	sinks  []ResultStore
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...ResultStore) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger.With("component", "store.fanout"),
	}
}

func (f *Fanout) SaveFound(ctx context.Context, rec model.WalletRecord) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.SaveFound(ctx, rec); err != nil {
			f.logger.Error("found record write failed", "address", rec.Address, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) SaveEmpty(ctx context.Context, rec model.EmptyRecord) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.SaveEmpty(ctx, rec); err != nil {
			f.logger.Error("empty record write failed", "address", rec.Address, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
