package debank

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/retry"
)

const (
	source = "debank"

	maxResponseBytes = 4 << 20
)

// Client queries a DeBank-compatible portfolio API for the aggregated token
// list of an address. One request covers every chain the API indexes, so the
// requested chain list is only echoed into the result.
type Client struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	limiter    *oracle.Limiter
	logger     *slog.Logger
}

type Config struct {
	BaseURL        string
	AccessKey      string
	Timeout        time.Duration
	RequestsPerSec float64
	Burst          int
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accessKey:  cfg.AccessKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    oracle.NewLimiter(cfg.RequestsPerSec, cfg.Burst, source),
		logger:     logger.With("component", "oracle.debank"),
	}
}

type tokenEntry struct {
	Symbol string           `json:"symbol"`
	Chain  string           `json:"chain"`
	Amount *decimal.Decimal `json:"amount"`
	Price  *decimal.Decimal `json:"price"`
}

func (c *Client) Check(ctx context.Context, address string, chains []model.Chain) (*oracle.CheckResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/v1/user/all_token_list?id=%s", c.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, retry.Terminal(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("AccessKey", c.accessKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		oracle.RecordCall(source, err, elapsed)
		return nil, retry.Transient(fmt.Errorf("portfolio request: %w", err))
	}
	defer resp.Body.Close()

	statusErr := statusError(resp.StatusCode)
	oracle.RecordCall(source, statusErr, elapsed)
	if statusErr != nil {
		return nil, statusErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read response: %w", err))
	}

	tokens, err := decodeTokenList(body)
	if err != nil {
		return nil, retry.Terminal(err)
	}
	c.logger.Debug("token list fetched", "address", address, "tokens", len(tokens))

	result := oracle.NewCheckResult()
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" || t.Amount == nil || !t.Amount.IsPositive() {
			continue
		}
		result.Coins[sym] = result.Coins[sym].Add(*t.Amount)
		if t.Price != nil {
			result.BalanceUSD = result.BalanceUSD.Add(t.Amount.Mul(*t.Price))
		}
	}
	result.ChainsChecked = append(result.ChainsChecked, chains...)
	return result, nil
}

// decodeTokenList accepts both response shapes the API is known to emit:
// a bare token array and an object wrapping it under "data".
func decodeTokenList(body []byte) ([]tokenEntry, error) {
	var tokens []tokenEntry
	if err := json.Unmarshal(body, &tokens); err == nil {
		return tokens, nil
	}
	var wrapped struct {
		Data []tokenEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	return wrapped.Data, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return retry.Transient(fmt.Errorf("portfolio api http status 429: rate limit"))
	case code >= 500:
		return retry.Transient(fmt.Errorf("portfolio api http status %d", code))
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return retry.Terminal(fmt.Errorf("portfolio api http status %d: invalid access key", code))
	default:
		return retry.Terminal(fmt.Errorf("portfolio api http status %d", code))
	}
}
