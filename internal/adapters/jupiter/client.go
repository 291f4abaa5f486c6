package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const (
	defaultBase = "https://quote-api.jup.ag/v6"

	// Rate limit del plan público: 600/min → 10/s, usamos el 60%.
	ratePerSec = 6
	rateBurst  = 3
)

// Client es el cliente HTTP del agregador de swaps (quote + swap tx).
// Sin retries: una quote vieja no sirve a un sniper, el engine decide.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
}

// NewClient crea un Client. Si base está vacío usa el endpoint público.
func NewClient(base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		base:    base,
		limiter: rate.NewLimiter(ratePerSec, rateBurst),
	}
}

type quoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// Quote pide una ruta exact-in para req.
func (c *Client) Quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.base+"/quote?"+q.Encode(), nil, &raw); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: %w", err)
	}

	var qr quoteResponse
	if err := json.Unmarshal(raw, &qr); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: decode: %w", err)
	}
	in, err := strconv.ParseUint(qr.InAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: inAmount %q: %w", qr.InAmount, err)
	}
	out, err := strconv.ParseUint(qr.OutAmount, 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter.Quote: outAmount %q: %w", qr.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(qr.PriceImpactPct, 64)

	return domain.Quote{
		InputMint:      qr.InputMint,
		OutputMint:     qr.OutputMint,
		InAmount:       in,
		OutAmount:      out,
		PriceImpactPct: impact,
		SlippageBps:    qr.SlippageBps,
		Raw:            raw,
	}, nil
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports *prioritization `json:"prioritizationFeeLamports,omitempty"`
}

type prioritization struct {
	JitoTipLamports uint64 `json:"jitoTipLamports"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction construye la transacción serializada para quote.
// Con tipLamports > 0 el tip del relay va embebido en la transacción.
func (c *Client) SwapTransaction(ctx context.Context, quote domain.Quote, wallet string, tipLamports uint64) (domain.SwapTransaction, error) {
	if len(quote.Raw) == 0 {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter.SwapTransaction: quote without raw route")
	}
	body := swapRequest{
		QuoteResponse:           quote.Raw,
		UserPublicKey:           wallet,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	}
	if tipLamports > 0 {
		body.PrioritizationFeeLamports = &prioritization{JitoTipLamports: tipLamports}
	}

	var sr swapResponse
	if err := c.do(ctx, http.MethodPost, c.base+"/swap", body, &sr); err != nil {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter.SwapTransaction: %w", err)
	}
	if sr.SwapTransaction == "" {
		return domain.SwapTransaction{}, fmt.Errorf("jupiter.SwapTransaction: empty transaction")
	}
	return domain.SwapTransaction{
		Payload:              sr.SwapTransaction,
		LastValidBlockHeight: sr.LastValidBlockHeight,
		TipLamports:          tipLamports,
	}, nil
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
