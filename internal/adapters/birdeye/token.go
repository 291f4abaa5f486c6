package birdeye

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

type tokenOverview struct {
	Address    string  `json:"address"`
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Decimals   int     `json:"decimals"`
	Price      float64 `json:"price"`
	Liquidity  float64 `json:"liquidity"`
	MarketCap  float64 `json:"mc"`
	Volume24h  float64 `json:"v24hUSD"`
	Holders    int     `json:"holder"`
	Extensions *struct {
		Twitter  string `json:"twitter"`
		Telegram string `json:"telegram"`
	} `json:"extensions"`
}

type tokenSecurity struct {
	OwnerAddress       *string `json:"ownerAddress"`
	FreezeAuthority    *string `json:"freezeAuthority"`
	Top10HolderPercent float64 `json:"top10HolderPercent"` // fracción 0-1
	LockInfo           *struct {
		Burned bool `json:"burned"`
	} `json:"lockInfo"`
}

type priceData struct {
	Value float64 `json:"value"`
}

// TokenMetadata arma el snapshot de mercado de address. La parte de
// seguridad es best-effort: si falla, el token queda con autoridades sin
// revocar (el peor caso para el scorer).
func (c *Client) TokenMetadata(ctx context.Context, address string) (domain.TokenMetadata, error) {
	q := url.Values{"address": {address}}

	ov, err := get[tokenOverview](ctx, c, c.base+"/defi/token_overview?"+q.Encode())
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("birdeye.TokenMetadata: overview: %w", err)
	}

	meta := domain.TokenMetadata{
		Token: domain.Token{
			Address:  address,
			Symbol:   orDefault(ov.Symbol, "UNKNOWN"),
			Name:     orDefault(ov.Name, "Unknown Token"),
			Decimals: ov.Decimals,
		},
		PriceUSD:     ov.Price,
		LiquidityUSD: ov.Liquidity,
		MarketCapUSD: ov.MarketCap,
		Volume24hUSD: ov.Volume24h,
		Holders:      ov.Holders,
		CreatedAt:    time.Now(),
	}
	if meta.Decimals == 0 {
		meta.Decimals = domain.NativeDecimals
	}

	sec, err := get[tokenSecurity](ctx, c, c.base+"/defi/token_security?"+q.Encode())
	if err != nil {
		slog.Debug("birdeye: security unavailable", "mint", address, "err", err)
		return meta, nil
	}
	meta.MintRevoked = sec.OwnerAddress == nil
	meta.FreezeRevoked = sec.FreezeAuthority == nil
	meta.Top10HolderPct = sec.Top10HolderPercent * 100
	meta.LiquidityBurned = sec.LockInfo != nil && sec.LockInfo.Burned
	return meta, nil
}

// Price devuelve el precio en USD de address.
func (c *Client) Price(ctx context.Context, address string) (float64, error) {
	q := url.Values{"address": {address}}
	p, err := get[priceData](ctx, c, c.base+"/defi/price?"+q.Encode())
	if err != nil {
		return 0, fmt.Errorf("birdeye.Price: %w", err)
	}
	if p.Value <= 0 {
		return 0, fmt.Errorf("birdeye.Price: %s: no price", address)
	}
	return p.Value, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
