package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/store"
)

const (
	sink = "postgres"

	logFound = "found"
	logEmpty = "empty"
)

// WalletRepo persists scan results. It satisfies store.ResultStore so it can
// sit behind the fanout next to the JSON-line logs.
type WalletRepo struct {
	db *DB
}

func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

func (r *WalletRepo) SaveFound(ctx context.Context, rec model.WalletRecord) error {
	start := time.Now()

	coins, err := json.Marshal(rec.Coins)
	if err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logFound, sink).Inc()
		return fmt.Errorf("marshal coins: %w", err)
	}

	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()
	_, err = r.db.ExecContext(qctx, `
		INSERT INTO found_wallets
			(address, private_key, phrase, balance_usd, coins, chains_checked, nonce, check_failed, undelivered, found_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Address,
		rec.PrivateKey,
		strings.Join(rec.Phrase, " "),
		rec.BalanceUSD.String(),
		coins,
		pq.Array(rec.ChainsChecked),
		int64(rec.Nonce),
		rec.CheckFailed,
		rec.Undelivered,
		rec.DiscoveredAt,
	)
	if err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logFound, sink).Inc()
		return fmt.Errorf("insert found wallet: %w", err)
	}

	metrics.StoreAppendsTotal.WithLabelValues(logFound, sink).Inc()
	metrics.StoreAppendLatency.WithLabelValues(logFound, sink).Observe(time.Since(start).Seconds())
	return nil
}

func (r *WalletRepo) SaveEmpty(ctx context.Context, rec model.EmptyRecord) error {
	start := time.Now()

	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(qctx, `
		INSERT INTO empty_wallets
			(address, chains_checked, check_failed, checked_at)
		VALUES ($1, $2, $3, $4)`,
		rec.Address,
		pq.Array(rec.ChainsChecked),
		rec.CheckFailed,
		rec.CheckedAt,
	)
	if err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logEmpty, sink).Inc()
		return fmt.Errorf("insert empty wallet: %w", err)
	}

	metrics.StoreAppendsTotal.WithLabelValues(logEmpty, sink).Inc()
	metrics.StoreAppendLatency.WithLabelValues(logEmpty, sink).Observe(time.Since(start).Seconds())
	return nil
}

// CountFound reports the archived found-wallet rows.
func (r *WalletRepo) CountFound(ctx context.Context) (int64, error) {
	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(qctx, "SELECT count(*) FROM found_wallets").Scan(&count); err != nil {
		return 0, fmt.Errorf("count found wallets: %w", err)
	}
	return count, nil
}

// CountEmpty reports the archived empty-wallet rows.
func (r *WalletRepo) CountEmpty(ctx context.Context) (int64, error) {
	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(qctx, "SELECT count(*) FROM empty_wallets").Scan(&count); err != nil {
		return 0, fmt.Errorf("count empty wallets: %w", err)
	}
	return count, nil
}

// RecentFound returns the newest archived finds in sanitized form. The
// private_key and phrase columns are deliberately absent from the query.
func (r *WalletRepo) RecentFound(ctx context.Context, limit int) ([]store.FoundSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(qctx, `
		SELECT address, balance_usd, coins, chains_checked, nonce, undelivered, found_at
		FROM found_wallets
		ORDER BY id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent finds: %w", err)
	}
	defer rows.Close()

	var out []store.FoundSummary
	for rows.Next() {
		var (
			summary    store.FoundSummary
			balanceUSD string
			coinsRaw   []byte
			nonce      int64
		)
		if err := rows.Scan(
			&summary.Address,
			&balanceUSD,
			&coinsRaw,
			pq.Array(&summary.ChainsChecked),
			&nonce,
			&summary.Undelivered,
			&summary.FoundAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent find: %w", err)
		}
		if summary.BalanceUSD, err = decimal.NewFromString(balanceUSD); err != nil {
			return nil, fmt.Errorf("parse balance for %s: %w", summary.Address, err)
		}
		if len(coinsRaw) > 0 {
			if err := json.Unmarshal(coinsRaw, &summary.Coins); err != nil {
				return nil, fmt.Errorf("decode coins for %s: %w", summary.Address, err)
			}
		}
		summary.Nonce = uint64(nonce)
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent finds: %w", err)
	}
	return out, nil
}

// CountUndelivered reports found rows whose alert never reached a channel.
func (r *WalletRepo) CountUndelivered(ctx context.Context) (int64, error) {
	qctx, cancel := withTimeout(ctx, queryTimeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(qctx, "SELECT count(*) FROM found_wallets WHERE undelivered").Scan(&count); err != nil {
		return 0, fmt.Errorf("count undelivered wallets: %w", err)
	}
	return count, nil
}
