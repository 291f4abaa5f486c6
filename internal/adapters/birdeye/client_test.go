package birdeye_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alejandrodnm/sniperbot/internal/adapters/birdeye"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const overviewJSON = `{"success":true,"data":{
	"address":"Mint","symbol":"GEM","name":"Gem Coin","decimals":6,
	"price":0.0012,"liquidity":42000.5,"mc":310000,"v24hUSD":99000,"holder":812
}}`

func TestTokenMetadata_OverviewAndSecurity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "solana", r.Header.Get("x-chain"))
		assert.Equal(t, "Mint", r.URL.Query().Get("address"))
		switch r.URL.Path {
		case "/defi/token_overview":
			w.Write([]byte(overviewJSON))
		case "/defi/token_security":
			w.Write([]byte(`{"success":true,"data":{"ownerAddress":null,"freezeAuthority":"Frz","top10HolderPercent":0.42,"lockInfo":{"burned":true}}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	meta, err := birdeye.NewClient(srv.URL, "secret").TokenMetadata(context.Background(), "Mint")
	require.NoError(t, err)

	assert.Equal(t, "GEM", meta.Symbol)
	assert.Equal(t, "Gem Coin", meta.Name)
	assert.Equal(t, 6, meta.Decimals)
	assert.InDelta(t, 0.0012, meta.PriceUSD, 1e-12)
	assert.InDelta(t, 42000.5, meta.LiquidityUSD, 1e-9)
	assert.InDelta(t, 310000, meta.MarketCapUSD, 1e-9)
	assert.Equal(t, 812, meta.Holders)
	assert.True(t, meta.MintRevoked)
	assert.False(t, meta.FreezeRevoked)
	assert.True(t, meta.LiquidityBurned)
	assert.InDelta(t, 42, meta.Top10HolderPct, 1e-9)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestTokenMetadata_SecurityFailureIsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/defi/token_security" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(overviewJSON))
	}))
	defer srv.Close()

	meta, err := birdeye.NewClient(srv.URL, "k").TokenMetadata(context.Background(), "Mint")
	require.NoError(t, err)
	assert.Equal(t, "GEM", meta.Symbol)
	assert.False(t, meta.MintRevoked)
}

func TestTokenMetadata_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := birdeye.NewClient(srv.URL, "bad").TokenMetadata(context.Background(), "Mint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/defi/price", r.URL.Path)
		w.Write([]byte(`{"success":true,"data":{"value":187.25,"updateUnixTime":1700000000}}`))
	}))
	defer srv.Close()

	p, err := birdeye.NewClient(srv.URL, "k").Price(context.Background(), "So11111111111111111111111111111111111111112")
	require.NoError(t, err)
	assert.InDelta(t, 187.25, p, 1e-9)
}

func TestPrice_ZeroIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{"value":0}}`))
	}))
	defer srv.Close()

	_, err := birdeye.NewClient(srv.URL, "k").Price(context.Background(), "Mint")
	assert.Error(t, err)
}

func TestPrice_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"data":{"value":2}}`))
	}))
	defer srv.Close()

	p, err := birdeye.NewClient(srv.URL, "k").Price(context.Background(), "Mint")
	require.NoError(t, err)
	assert.Equal(t, 2.0, p)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPrice_ClientErrorNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := birdeye.NewClient(srv.URL, "k").Price(context.Background(), "Mint")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
