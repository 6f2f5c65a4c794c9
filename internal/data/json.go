package data

import (
	"context"
	"fmt"
	"os"

	"battle-arena/internal/model"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Fixture is the on-disk shape read by FileProvider.
//
//	{"prices": {"BTC": 95000, ...}, "history": {"BTC": [{"time": "...", "price": 94000}]}}
type Fixture struct {
	Prices  map[string]decimal.Decimal    `json:"prices"`
	History map[string][]model.PricePoint `json:"history,omitempty"`
}

func LoadFixture(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := sonic.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return &f, nil
}

// FileProvider serves prices from a JSON fixture. The file is re-read on every
// fetch so it can be edited while a battle runs.
type FileProvider struct {
	Path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

func (p *FileProvider) FetchPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := LoadFixture(p.Path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(f.Prices))
	for sym, price := range f.Prices {
		out[sym] = price
	}
	return out, nil
}

func (p *FileProvider) History(ctx context.Context, symbol string, days int) ([]model.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := LoadFixture(p.Path)
	if err != nil {
		return nil, err
	}
	return f.History[symbol], nil
}
