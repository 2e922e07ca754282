package automation

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// balanceLabels maps the funds-page label variants onto snapshot fields.
var balanceLabels = map[string][]string{
	"available": {"可用金额", "可用资金"},
	"total":     {"资金余额", "总资产"},
	"market":    {"股票市值", "市值"},
	"frozen":    {"冻结金额", "冻结资金"},
}

// Positional fallback: the funds page emits its numeric values in a fixed
// order when labels cannot be paired. Validated against one GUI build; the
// label heuristic takes precedence whenever it resolves.
const (
	posBalance = iota
	posFrozen
	posAvailable
	posWithdrawable
	posMarketValue
	posTotalAssets
	positionalCount
)

// BalanceScraper reads the account money state off the funds page by
// enumerating child-window text.
type BalanceScraper struct {
	nav     *Navigator
	windows *WindowController
	log     zerolog.Logger
}

// NewBalanceScraper creates the balance scraper.
func NewBalanceScraper(nav *Navigator, windows *WindowController, log zerolog.Logger) *BalanceScraper {
	return &BalanceScraper{
		nav:     nav,
		windows: windows,
		log:     log.With().Str("component", "scraper").Logger(),
	}
}

// Scrape navigates to the funds page and extracts a BalanceSnapshot.
// Label-based pairing is tried first; when it resolves fewer than three
// fields the fixed positional order takes over. Fails with
// BalanceUnavailable when fewer than two fields can be resolved at all.
func (b *BalanceScraper) Scrape(ctx context.Context) (domain.BalanceSnapshot, error) {
	h, err := b.nav.Goto(ctx, domain.PageFunds)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	texts, err := b.windows.ChildTexts(ctx, h)
	if err != nil {
		return domain.BalanceSnapshot{}, err
	}
	return b.extract(texts, time.Now())
}

// extract applies the label heuristic with positional fallback. Split out
// of Scrape so it is testable without a window.
func (b *BalanceScraper) extract(texts []string, now time.Time) (domain.BalanceSnapshot, error) {
	labeled, labeledCount := balanceFromLabels(texts)
	positional, positionalOK := balanceFromPositions(texts)

	fields := labeled
	count := labeledCount
	if labeledCount < 3 && positionalOK {
		// Order-based extraction fills what the labels could not.
		if labeledCount > 0 {
			b.logDisagreements(labeled, positional)
		}
		merged := positional
		for k, v := range labeled {
			merged[k] = v // label-based values win
		}
		fields = merged
		count = len(merged)
	} else if labeledCount >= 3 && positionalOK {
		b.logDisagreements(labeled, positional)
	}

	if count < 2 {
		return domain.BalanceSnapshot{}, domain.Errorf(domain.CodeBalanceUnavailable,
			"resolved %d of 4 balance fields from %d labels", count, len(texts))
	}

	snap := domain.BalanceSnapshot{
		AvailableCash: fields["available"],
		TotalAssets:   fields["total"],
		MarketValue:   fields["market"],
		FrozenAmount:  fields["frozen"],
		CapturedAt:    now,
		Source:        domain.BalanceScraped,
	}
	if snap.TotalAssets < snap.AvailableCash+snap.FrozenAmount {
		b.log.Warn().
			Float64("total_assets", snap.TotalAssets).
			Float64("available_cash", snap.AvailableCash).
			Float64("frozen_amount", snap.FrozenAmount).
			Msg("Balance snapshot violates total >= available + frozen")
	}
	return snap, nil
}

// logDisagreements reports fields where the two strategies differ; the
// label values are the ones returned.
func (b *BalanceScraper) logDisagreements(labeled, positional map[string]float64) {
	for k, lv := range labeled {
		if pv, ok := positional[k]; ok && pv != lv {
			b.log.Warn().
				Str("field", k).
				Float64("label_value", lv).
				Float64("positional_value", pv).
				Msg("Balance extraction strategies disagree, preferring label value")
		}
	}
}

// balanceFromLabels pairs each known label with the next numeric-looking
// token in enumeration order.
func balanceFromLabels(texts []string) (map[string]float64, int) {
	fields := make(map[string]float64)
	for i, text := range texts {
		field, ok := labelField(text)
		if !ok {
			continue
		}
		if _, seen := fields[field]; seen {
			continue
		}
		for j := i + 1; j < len(texts); j++ {
			if v, ok := parseMoney(texts[j]); ok {
				fields[field] = v
				break
			}
			// A different label before any number ends the pairing.
			if _, isLabel := labelField(texts[j]); isLabel {
				break
			}
		}
	}
	return fields, len(fields)
}

// balanceFromPositions extracts the four required fields from the
// documented fixed value order.
func balanceFromPositions(texts []string) (map[string]float64, bool) {
	var values []float64
	for _, text := range texts {
		if v, ok := parseMoney(text); ok {
			values = append(values, v)
		}
	}
	if len(values) < positionalCount {
		return nil, false
	}
	return map[string]float64{
		"available": values[posAvailable],
		"total":     values[posTotalAssets],
		"market":    values[posMarketValue],
		"frozen":    values[posFrozen],
	}, true
}

// labelField matches a child-window text against the known label variants.
// Labels carry decoration on some GUI builds ("可用金额:"), so containment
// is enough.
func labelField(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	for field, variants := range balanceLabels {
		for _, v := range variants {
			if strings.Contains(trimmed, v) {
				return field, true
			}
		}
	}
	return "", false
}

// parseMoney parses a currency-formatted token: thousands separators
// stripped, at most two fractional digits, negatives rejected (monetary
// fields on the funds page are non-negative by invariant).
func parseMoney(text string) (float64, bool) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimSuffix(cleaned, "元")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" || strings.HasPrefix(cleaned, "-") {
		return 0, false
	}
	if dot := strings.IndexByte(cleaned, '.'); dot >= 0 && len(cleaned)-dot-1 > 2 {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
