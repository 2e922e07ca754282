// Package domain provides core domain models and the typed error codes
// shared by the automation core and the service surface.
package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Page is one of the trading GUI's top-level views reachable by a single
// hotkey. The navigator never trusts a "current page"; every transition
// starts from PageUnknown.
type Page string

const (
	PageUnknown  Page = "unknown"
	PageHoldings Page = "holdings"
	PageTrades   Page = "trades"
	PageOrders   Page = "orders"
	PageBuyForm  Page = "buy_form"
	PageSellForm Page = "sell_form"
	PageFunds    Page = "funds"
)

// ExportKind identifies which data grid an export was taken from.
type ExportKind string

const (
	ExportHoldings ExportKind = "holdings"
	ExportTrades   ExportKind = "trades"
	ExportOrders   ExportKind = "orders"
)

// ParseExportKind maps a request string onto an ExportKind.
func ParseExportKind(s string) (ExportKind, bool) {
	switch ExportKind(strings.ToLower(strings.TrimSpace(s))) {
	case ExportHoldings:
		return ExportHoldings, true
	case ExportTrades:
		return ExportTrades, true
	case ExportOrders:
		return ExportOrders, true
	}
	return "", false
}

// Page returns the GUI page holding this kind's data grid.
func (k ExportKind) Page() Page {
	switch k {
	case ExportTrades:
		return PageTrades
	case ExportOrders:
		return PageOrders
	default:
		return PageHoldings
	}
}

// BalanceSource records where a snapshot came from.
type BalanceSource string

const (
	// BalanceScraped means the snapshot was read from funds-page child
	// window text.
	BalanceScraped BalanceSource = "scraped"
	// BalanceExported means the snapshot was derived from a fresh export.
	BalanceExported BalanceSource = "exported"
)

// BalanceSnapshot is the account money state at a point in time. All four
// monetary fields are non-negative; TotalAssets >= AvailableCash + Frozen.
type BalanceSnapshot struct {
	AvailableCash float64       `json:"available_cash"`
	TotalAssets   float64       `json:"total_assets"`
	MarketValue   float64       `json:"market_value"`
	FrozenAmount  float64       `json:"frozen_amount"`
	CapturedAt    time.Time     `json:"captured_at"`
	Source        BalanceSource `json:"source"`
}

// HoldingRecord is one row of a holdings export.
type HoldingRecord struct {
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Quantity          float64 `json:"quantity"`
	AvailableQuantity float64 `json:"available_quantity"`
	FrozenQuantity    float64 `json:"frozen_quantity"`
	PnL               float64 `json:"pnl"`
	MarketValue       float64 `json:"market_value"`
	CostPrice         float64 `json:"cost_price"`
	CurrentPrice      float64 `json:"current_price"`
}

// TradeRecord is one row of a trades (fills) export.
type TradeRecord struct {
	TradedAt string  `json:"traded_at"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Side     string  `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Amount   float64 `json:"amount"`
	Fee      float64 `json:"fee"`
}

// OrderRecord is one row of an orders export.
type OrderRecord struct {
	OrderedAt      string  `json:"ordered_at"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Side           string  `json:"side"`
	Price          float64 `json:"price"`
	Quantity       float64 `json:"quantity"`
	FilledQuantity float64 `json:"filled_quantity"`
	Cancelled      float64 `json:"cancelled"`
	Status         string  `json:"status"`
}

// Side is the direction of a trade intent.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// ParseSide maps a request string onto a Side.
func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	}
	return "", false
}

// Exchange lot size and price bounds for A-share limit orders.
const (
	LotSize       = 100
	MaxLimitPrice = 9999.99
)

// TradeIntent is a request to fill the buy or sell form. Price empty means
// a market order: the price field is left to the GUI's own default.
type TradeIntent struct {
	Side        Side   `json:"side"`
	Symbol      string `json:"symbol"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price,omitempty"`
	AutoConfirm bool   `json:"auto_confirm"`
}

// Validate checks the intent against the exchange contract: six-digit
// symbol, lot-size multiple quantity, and a positive limit price with at
// most two fractional digits when one is given.
func (t TradeIntent) Validate() error {
	if t.Side != SideBuy && t.Side != SideSell {
		return Errorf(CodeInvalidTradeIntent, "side must be Buy or Sell, got %q", t.Side)
	}
	if len(t.Symbol) != 6 {
		return Errorf(CodeInvalidTradeIntent, "symbol must be 6 digits, got %q", t.Symbol)
	}
	for _, r := range t.Symbol {
		if r < '0' || r > '9' {
			return Errorf(CodeInvalidTradeIntent, "symbol must be 6 digits, got %q", t.Symbol)
		}
	}
	if t.Quantity <= 0 || t.Quantity%LotSize != 0 {
		return Errorf(CodeInvalidTradeIntent, "quantity must be a positive multiple of %d, got %d", LotSize, t.Quantity)
	}
	if t.Price != "" {
		p, err := decimal.NewFromString(t.Price)
		if err != nil {
			return Errorf(CodeInvalidTradeIntent, "price %q is not a decimal", t.Price)
		}
		if !p.IsPositive() {
			return Errorf(CodeInvalidTradeIntent, "price must be positive, got %s", t.Price)
		}
		if p.GreaterThan(decimal.NewFromFloat(MaxLimitPrice)) {
			return Errorf(CodeInvalidTradeIntent, "price %s exceeds limit %v", t.Price, MaxLimitPrice)
		}
		if p.Exponent() < -2 {
			return Errorf(CodeInvalidTradeIntent, "price %s has more than 2 fractional digits", t.Price)
		}
	}
	return nil
}

// NormalizedPrice returns the price string to type into the form. Limit
// prices are canonicalized by decimal (no trailing garbage); market orders
// return an empty string, meaning the price field is left untouched so the
// GUI's own market-price default applies.
func (t TradeIntent) NormalizedPrice() string {
	if t.Price == "" {
		return ""
	}
	p, err := decimal.NewFromString(t.Price)
	if err != nil {
		return t.Price
	}
	return p.String()
}

// TradeReceipt reports what the executor actually did: the form was filled
// and, when AutoConfirm was set, Enter was pressed. It never claims broker
// acceptance.
type TradeReceipt struct {
	Status      string    `json:"status"` // always "TradeIntentSubmitted"
	Side        Side      `json:"side"`
	Symbol      string    `json:"symbol"`
	Quantity    int64     `json:"quantity"`
	Price       string    `json:"price,omitempty"`
	AutoConfirm bool      `json:"auto_confirm"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ExportFile describes an on-disk CSV artifact produced by the GUI.
type ExportFile struct {
	Path      string     `json:"path"`
	Kind      ExportKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	Records   int        `json:"records"`
}
