// Package notify delivers scan events to the configured channels: found
// wallets immediately with retries, empty wallets as periodic batch
// digests, and scan lifecycle announcements once per run.
package notify

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

// Kind categorizes a notification.
type Kind string

const (
	KindWalletFound   Kind = "wallet_found"
	KindEmptyBatch    Kind = "empty_batch"
	KindScanStarted   Kind = "scan_started"
	KindScanCompleted Kind = "scan_completed"
)

// Message is one notification ready for delivery. Text carries the HTML
// body for chat transports; Payload carries the structured form for
// webhook and stream transports.
type Message struct {
	Kind    Kind
	Text    string
	Payload any
}

// Transport delivers one message to a single channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

const timestampLayout = "2006-01-02 15:04:05"

// FormatWalletFound renders the found-wallet alert. It is the only
// notification that carries key material.
func FormatWalletFound(rec model.WalletRecord) string {
	var b strings.Builder
	b.WriteString("🎉 <b>WALLET FOUND!</b> 🎉\n\n")
	fmt.Fprintf(&b, "💰 <b>Balance:</b> $%s\n", rec.BalanceUSD.StringFixed(2))
	fmt.Fprintf(&b, "📍 <b>Address:</b> <code>%s</code>\n", rec.Address)
	fmt.Fprintf(&b, "🔑 <b>Private Key:</b> <code>%s</code>\n", rec.PrivateKey)
	fmt.Fprintf(&b, "📝 <b>Phrase:</b> <code>%s</code>\n\n", strings.Join(rec.Phrase, " "))

	b.WriteString("💎 <b>Coins:</b>\n")
	symbols := make([]string, 0, len(rec.Coins))
	for sym := range rec.Coins {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		fmt.Fprintf(&b, "  • %s: %s\n", html.EscapeString(sym), rec.Coins[sym].String())
	}

	chains := "Multiple"
	if len(rec.ChainsChecked) > 0 {
		chains = strings.Join(rec.ChainsChecked, ", ")
	}
	fmt.Fprintf(&b, "\n🌐 <b>Chains:</b> %s\n", chains)
	fmt.Fprintf(&b, "📊 <b>Transactions:</b> %d\n", rec.Nonce)
	fmt.Fprintf(&b, "⏰ <b>Found at:</b> %s\n\n", rec.DiscoveredAt.Format(timestampLayout))
	b.WriteString("<i>DIDINSKA Wallet Hunter v4.0</i>")
	return b.String()
}

// FormatEmptyBatch renders the periodic empty-wallet digest.
func FormatEmptyBatch(count int, totalChecked uint64, at time.Time) string {
	var b strings.Builder
	b.WriteString("📭 <b>Empty Wallets Report</b>\n\n")
	fmt.Fprintf(&b, "🔍 Scanned: %d wallets\n", count)
	fmt.Fprintf(&b, "❌ Empty: %d\n", count)
	fmt.Fprintf(&b, "📊 Total Checked: %d\n", totalChecked)
	fmt.Fprintf(&b, "⏰ Time: %s\n\n", at.Format(timestampLayout))
	b.WriteString("<i>Batch scan completed - DIDINSKA</i>")
	return b.String()
}

// FormatScanStarted renders the run announcement.
func FormatScanStarted(target, workers int, at time.Time) string {
	var b strings.Builder
	b.WriteString("🚀 <b>Scan Started</b>\n\n")
	fmt.Fprintf(&b, "🎯 Target: %s wallets\n", thousands(uint64(target)))
	fmt.Fprintf(&b, "⚡ Workers: %d\n", workers)
	fmt.Fprintf(&b, "🕐 Started: %s\n\n", at.Format(timestampLayout))
	b.WriteString("<i>DIDINSKA Wallet Hunter is running...</i>")
	return b.String()
}

// FormatScanCompleted renders the end-of-run summary.
func FormatScanCompleted(summary model.ScanSummary) string {
	var b strings.Builder
	b.WriteString("✅ <b>Scan Completed</b>\n\n")
	b.WriteString("📊 <b>Statistics:</b>\n")
	fmt.Fprintf(&b, "  • Generated: %s\n", thousands(summary.Stats.Generated))
	fmt.Fprintf(&b, "  • Checked: %s\n", thousands(summary.Stats.Checked))
	fmt.Fprintf(&b, "  • Found: %d\n", summary.Stats.Found)
	fmt.Fprintf(&b, "  • Empty: %s\n", thousands(summary.Stats.Empty))
	fmt.Fprintf(&b, "  • Speed: %.2f wallet/s\n", summary.Rate)
	fmt.Fprintf(&b, "  • Runtime: %.2fs\n\n", summary.Elapsed.Seconds())
	b.WriteString("<i>DIDINSKA Wallet Hunter</i>")
	return b.String()
}

// thousands formats n with comma separators.
func thousands(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
