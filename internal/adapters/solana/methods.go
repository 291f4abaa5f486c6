package solana

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const commitment = "confirmed"

// NativeBalance devuelve el balance de SOL de wallet.
func (c *Client) NativeBalance(ctx context.Context, wallet string) (float64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	params := []any{wallet, map[string]any{"commitment": commitment}}
	if err := c.call(ctx, "getBalance", params, &res); err != nil {
		return 0, fmt.Errorf("solana.NativeBalance: %w", err)
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(res.Value), -domain.NativeDecimals).InexactFloat64(), nil
}

type tokenAccounts struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount struct {
							Amount   string `json:"amount"`
							Decimals int32  `json:"decimals"`
						} `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// TokenBalance suma el balance de mint en todas las token accounts de wallet,
// en base units. Los decimales son los de la cuenta, no los de la metadata.
// Sin cuentas el balance es 0.
func (c *Client) TokenBalance(ctx context.Context, wallet, mint string) (domain.TokenAmount, error) {
	var res tokenAccounts
	params := []any{
		wallet,
		map[string]any{"mint": mint},
		map[string]any{"encoding": "jsonParsed", "commitment": commitment},
	}
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &res); err != nil {
		return domain.TokenAmount{}, fmt.Errorf("solana.TokenBalance: %w", err)
	}

	var out domain.TokenAmount
	total := decimal.Zero
	for i, acc := range res.Value {
		amt := acc.Account.Data.Parsed.Info.TokenAmount
		raw, err := decimal.NewFromString(amt.Amount)
		if err != nil {
			return domain.TokenAmount{}, fmt.Errorf("solana.TokenBalance: amount %q: %w", amt.Amount, err)
		}
		if i > 0 && int(amt.Decimals) != out.Decimals {
			return domain.TokenAmount{}, fmt.Errorf("solana.TokenBalance: accounts disagree on decimals (%d vs %d)", out.Decimals, amt.Decimals)
		}
		out.Decimals = int(amt.Decimals)
		total = total.Add(raw)
	}
	if !total.BigInt().IsUint64() {
		return domain.TokenAmount{}, fmt.Errorf("solana.TokenBalance: amount %s overflows", total)
	}
	out.Raw = total.BigInt().Uint64()
	return out, nil
}

// SendTransaction envía la transacción serializada tal cual viene del router.
func (c *Client) SendTransaction(ctx context.Context, tx domain.SwapTransaction) (string, error) {
	var sig string
	params := []any{tx.Payload, map[string]any{
		"encoding":      "base64",
		"skipPreflight": true,
		"maxRetries":    2,
	}}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", fmt.Errorf("solana.SendTransaction: %w", err)
	}
	return sig, nil
}

type signatureStatuses struct {
	Value []*struct {
		ConfirmationStatus string `json:"confirmationStatus"`
		Err                any    `json:"err"`
	} `json:"value"`
}

// TransactionStatus consulta getSignatureStatuses. Una firma que el nodo aún
// no conoce devuelve Found=false sin error.
func (c *Client) TransactionStatus(ctx context.Context, signature string) (domain.TxStatus, error) {
	var res signatureStatuses
	params := []any{[]string{signature}, map[string]any{"searchTransactionHistory": true}}
	if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return domain.TxStatus{}, fmt.Errorf("solana.TransactionStatus: %w", err)
	}
	if len(res.Value) == 0 || res.Value[0] == nil {
		return domain.TxStatus{}, nil
	}
	st := res.Value[0]
	out := domain.TxStatus{
		Found:     true,
		Confirmed: st.ConfirmationStatus == "confirmed" || st.ConfirmationStatus == "finalized",
	}
	if st.Err != nil {
		out.Err = fmt.Sprint(st.Err)
	}
	return out, nil
}
