package automation

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// TradeExecutor fills the GUI's buy or sell order form from a validated
// TradeIntent. It reports form submission only; whether the broker accepts
// the order is visible later through the orders export.
type TradeExecutor struct {
	nav   *Navigator
	input *Input
	log   zerolog.Logger
}

// NewTradeExecutor creates the trade executor.
func NewTradeExecutor(nav *Navigator, input *Input, log zerolog.Logger) *TradeExecutor {
	return &TradeExecutor{
		nav:   nav,
		input: input,
		log:   log.With().Str("component", "trade").Logger(),
	}
}

// Execute validates the intent, navigates to the matching order form and
// types it in field by field: symbol, Tab, price, Tab, quantity. Every
// typed field goes through the clipboard verification loop. A market
// order leaves the price field untouched so the GUI's own default
// applies, but still tabs past it to reach the quantity field.
//
// Enter is pressed only when AutoConfirm is set; otherwise the filled
// form is left on screen for the operator.
func (t *TradeExecutor) Execute(ctx context.Context, intent domain.TradeIntent) (domain.TradeReceipt, error) {
	if err := intent.Validate(); err != nil {
		return domain.TradeReceipt{}, err
	}

	page := domain.PageBuyForm
	if intent.Side == domain.SideSell {
		page = domain.PageSellForm
	}
	if _, err := t.nav.Goto(ctx, page); err != nil {
		return domain.TradeReceipt{}, err
	}

	// The form opens with focus on the symbol field.
	if err := t.input.TypeText(ctx, intent.Symbol); err != nil {
		return domain.TradeReceipt{}, err
	}
	if err := t.input.SendKey(ctx, KeyTab); err != nil {
		return domain.TradeReceipt{}, err
	}

	if price := intent.NormalizedPrice(); price != "" {
		if err := t.input.TypeText(ctx, price); err != nil {
			return domain.TradeReceipt{}, err
		}
	}
	if err := t.input.SendKey(ctx, KeyTab); err != nil {
		return domain.TradeReceipt{}, err
	}

	if err := t.input.TypeText(ctx, strconv.FormatInt(intent.Quantity, 10)); err != nil {
		return domain.TradeReceipt{}, err
	}

	if intent.AutoConfirm {
		if err := t.input.SendKey(ctx, KeyEnter); err != nil {
			return domain.TradeReceipt{}, err
		}
	}

	receipt := domain.TradeReceipt{
		Status:      "TradeIntentSubmitted",
		Side:        intent.Side,
		Symbol:      intent.Symbol,
		Quantity:    intent.Quantity,
		Price:       intent.NormalizedPrice(),
		AutoConfirm: intent.AutoConfirm,
		SubmittedAt: time.Now(),
	}
	t.log.Info().
		Str("side", string(intent.Side)).
		Str("symbol", intent.Symbol).
		Int64("quantity", intent.Quantity).
		Str("price", receipt.Price).
		Bool("auto_confirm", intent.AutoConfirm).
		Msg("Trade intent submitted to order form")
	return receipt, nil
}

// DismissDialogs presses Escape twice with a short pause. It runs after
// any failed task to knock down modal dialogs a half-finished flow may
// have left on screen, so the next task starts from a clean window.
// Errors are logged, never propagated; cleanup is best-effort.
func DismissDialogs(ctx context.Context, in *Input) {
	for i := 0; i < 2; i++ {
		if err := in.SendKey(ctx, KeyEscape); err != nil {
			in.log.Debug().Err(err).Msg("Escape during dialog cleanup failed")
			return
		}
		if err := in.backend.Sleep(ctx, SleepKeyPress, in.delays.KeyPress); err != nil {
			return
		}
	}
}
