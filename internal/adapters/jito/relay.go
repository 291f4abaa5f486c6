package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const (
	defaultURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

	ratePerSec = 5
	rateBurst  = 5
)

// ErrMissingTip: el block engine descarta bundles sin tip.
var ErrMissingTip = errors.New("jito: bundle without tip")

// Relay envía bundles al block engine.
type Relay struct {
	http    *http.Client
	url     string
	limiter *rate.Limiter
}

// NewRelay crea un Relay. Si url está vacío usa mainnet.
func NewRelay(url string) *Relay {
	if url == "" {
		url = defaultURL
	}
	return &Relay{
		http:    &http.Client{Timeout: 10 * time.Second},
		url:     url,
		limiter: rate.NewLimiter(ratePerSec, rateBurst),
	}
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SendBundle envía tx como bundle de una transacción. El tip tiene que venir
// embebido en la transacción.
func (r *Relay) SendBundle(ctx context.Context, tx domain.SwapTransaction) (string, error) {
	if tx.TipLamports == 0 {
		return "", fmt.Errorf("jito.SendBundle: %w", ErrMissingTip)
	}
	var bundleID string
	params := []any{[]string{tx.Payload}, map[string]string{"encoding": "base64"}}
	if err := r.call(ctx, "sendBundle", params, &bundleID); err != nil {
		return "", fmt.Errorf("jito.SendBundle: %w", err)
	}
	return bundleID, nil
}

type bundleStatuses struct {
	Value []struct {
		BundleID           string          `json:"bundle_id"`
		ConfirmationStatus string          `json:"confirmation_status"`
		Err                json.RawMessage `json:"err"`
	} `json:"value"`
}

// BundleStatus consulta getBundleStatuses. Un bundle que aún no aterrizó
// devuelve Found=false.
func (r *Relay) BundleStatus(ctx context.Context, bundleID string) (domain.TxStatus, error) {
	var res bundleStatuses
	if err := r.call(ctx, "getBundleStatuses", []any{[]string{bundleID}}, &res); err != nil {
		return domain.TxStatus{}, fmt.Errorf("jito.BundleStatus: %w", err)
	}
	for _, v := range res.Value {
		if v.BundleID != bundleID {
			continue
		}
		st := domain.TxStatus{
			Found:     true,
			Confirmed: v.ConfirmationStatus == "confirmed" || v.ConfirmationStatus == "finalized",
		}
		// err viene como {"Ok":null} cuando todo fue bien
		if e := bytes.TrimSpace(v.Err); len(e) > 0 && !bytes.Equal(e, []byte("null")) && !bytes.Contains(e, []byte(`"Ok"`)) {
			st.Err = string(e)
		}
		return st, nil
	}
	return domain.TxStatus{}, nil
}

func (r *Relay) call(ctx context.Context, method string, params []any, out any) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	b, err := json.Marshal(request{JSONRPC: "2.0", ID: uuid.NewString(), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %d: %s", method, resp.StatusCode, string(msg))
	}
	var rr response
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("%s: error %d: %s", method, rr.Error.Code, rr.Error.Message)
	}
	// getBundleStatuses devuelve result null para bundles desconocidos
	if len(rr.Result) == 0 || bytes.Equal(rr.Result, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}
