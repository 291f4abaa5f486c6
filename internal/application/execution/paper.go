package execution

import (
	"sync"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// paperBook lleva las tenencias simuladas del modo dry-run, en base units.
type paperBook struct {
	mu       sync.Mutex
	holdings map[string]domain.TokenAmount
}

func newPaperBook() *paperBook {
	return &paperBook{holdings: make(map[string]domain.TokenAmount)}
}

func (b *paperBook) add(mint string, amt domain.TokenAmount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.holdings[mint]
	cur.Raw += amt.Raw
	cur.Decimals = amt.Decimals
	b.holdings[mint] = cur
}

func (b *paperBook) remove(mint string, raw uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.holdings[mint]
	if raw >= cur.Raw {
		delete(b.holdings, mint)
		return
	}
	cur.Raw -= raw
	b.holdings[mint] = cur
}

func (b *paperBook) get(mint string) domain.TokenAmount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holdings[mint]
}
