package debank

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:   srv.URL,
		AccessKey: "test-key",
		Timeout:   2 * time.Second,
	}, testLogger())
}

func TestCheck_AggregatesTokenList(t *testing.T) {
	var gotPath, gotID, gotAccept, gotKey string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("id")
		gotAccept = r.Header.Get("accept")
		gotKey = r.Header.Get("AccessKey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"eth","chain":"eth","amount":1.5,"price":2000},
			{"symbol":"usdc","chain":"base","amount":25,"price":1},
			{"symbol":"dust","chain":"eth","amount":0,"price":3},
			{"symbol":"airdrop","chain":"bsc","amount":2,"price":null},
			{"symbol":"","chain":"eth","amount":9,"price":1}
		]`))
	})

	chains := []model.Chain{model.ChainEthereum, model.ChainBSC}
	result, err := client.Check(context.Background(), "0xabc", chains)
	require.NoError(t, err)

	assert.Equal(t, "/v1/user/all_token_list", gotPath)
	assert.Equal(t, "0xabc", gotID)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, "test-key", gotKey)

	assert.True(t, decimal.NewFromInt(3025).Equal(result.BalanceUSD), "got %s", result.BalanceUSD)
	require.Len(t, result.Coins, 3)
	assert.True(t, decimal.NewFromFloat(1.5).Equal(result.Coins["ETH"]))
	assert.True(t, decimal.NewFromInt(25).Equal(result.Coins["USDC"]))
	assert.True(t, decimal.NewFromInt(2).Equal(result.Coins["AIRDROP"]))
	assert.Equal(t, chains, result.ChainsChecked)
}

func TestCheck_UnwrapsDataEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"symbol":"bnb","chain":"bsc","amount":"0.4","price":"600"}]}`))
	})

	result, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainBSC})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(240).Equal(result.BalanceUSD), "got %s", result.BalanceUSD)
	assert.True(t, result.HasValue())
}

func TestCheck_EmptyPortfolio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	result, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum})
	require.NoError(t, err)
	assert.False(t, result.HasValue())
	assert.Empty(t, result.Coins)
	assert.True(t, result.BalanceUSD.IsZero())
}

func TestCheck_StatusClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantTransient: true},
		{name: "server error", status: http.StatusBadGateway, wantTransient: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantTransient: false},
		{name: "bad request", status: http.StatusBadRequest, wantTransient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, retry.Classify(err).IsTransient())
		})
	}
}

func TestCheck_MalformedBodyIsTerminal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "not a list"`))
	})

	_, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum})
	require.Error(t, err)
	assert.False(t, retry.Classify(err).IsTransient())
}

func TestCheck_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(Config{BaseURL: srv.URL, AccessKey: "k", Timeout: time.Second}, testLogger())
	_, err := client.Check(context.Background(), "0xabc", []model.Chain{model.ChainEthereum})
	require.Error(t, err)
	assert.True(t, retry.Classify(err).IsTransient())
}
