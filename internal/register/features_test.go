package register

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/saffron-pos/api/internal/cart"
	"github.com/saffron-pos/api/internal/enum"
	"github.com/saffron-pos/api/internal/pricing"
	"github.com/saffron-pos/api/internal/promo"
	"github.com/shopspring/decimal"
)

type registerTestContext struct {
	resolver *promo.Resolver
	reg      *Register
	taxRate  decimal.Decimal
	err      error
}

func (c *registerTestContext) reset() {
	c.resolver = promo.NewResolver(promo.DefaultPromos)
	c.reg = New(uuid.New(), uuid.New())
	c.taxRate = decimal.Zero
	c.err = nil
}

func (c *registerTestContext) aTaxRateOfPercent(pct int) error {
	c.taxRate = decimal.NewFromInt(int64(pct)).Div(decimal.NewFromInt(100))
	return nil
}

func (c *registerTestContext) ofAnItemPricedInTheCart(qty, price int) error {
	line, err := c.reg.Cart.AddItem(cart.MenuItem{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("item %d", price),
		UnitPrice: decimal.NewFromInt(int64(price)),
		Available: true,
	})
	if err != nil {
		return err
	}
	return c.reg.Cart.SetQuantity(line.ID, int32(qty))
}

func (c *registerTestContext) aManualDiscountOf(amount int) error {
	return c.reg.SetManualDiscount(decimal.NewFromInt(int64(amount)))
}

func (c *registerTestContext) iApplyPromo(code string) error {
	_, c.err = c.reg.ApplyPromo(c.resolver, code)
	return nil
}

func (c *registerTestContext) theCustomerTendersInCash(amount int) error {
	return c.reg.SetTendered(decimal.NewFromInt(int64(amount)))
}

func (c *registerTestContext) theRegisterIsResetTwice() error {
	c.reg.Reset()
	c.reg.Reset()
	return nil
}

func (c *registerTestContext) quote() pricing.Quote {
	return c.reg.Quote(c.resolver, c.taxRate)
}

func expectAmount(label string, got decimal.Decimal, want int) error {
	if !got.Equal(decimal.NewFromInt(int64(want))) {
		return fmt.Errorf("expected %s %d, got %s", label, want, got)
	}
	return nil
}

func (c *registerTestContext) theSubtotalIs(want int) error {
	return expectAmount("subtotal", c.quote().Subtotal, want)
}

func (c *registerTestContext) theTaxIs(want int) error {
	return expectAmount("tax", c.quote().Tax, want)
}

func (c *registerTestContext) theTotalIs(want int) error {
	return expectAmount("total", c.quote().Total, want)
}

func (c *registerTestContext) theDiscountIs(want int) error {
	return expectAmount("discount", c.quote().Discount, want)
}

func (c *registerTestContext) theChangeIs(want int) error {
	return expectAmount("change", c.reg.Change(c.quote().Total), want)
}

func (c *registerTestContext) theTenderedAmountIs(want int) error {
	return expectAmount("tendered", c.reg.Tendered, want)
}

func (c *registerTestContext) thePromoIsRejectedWithMinimum(min int) error {
	var below *promo.BelowMinimumError
	if !errors.As(c.err, &below) {
		return fmt.Errorf("expected BelowMinimumError, got %v", c.err)
	}
	return expectAmount("minimum", below.Minimum, min)
}

func (c *registerTestContext) thePromoIsRejectedAsNotFound() error {
	if !errors.Is(c.err, promo.ErrNotFound) {
		return fmt.Errorf("expected ErrNotFound, got %v", c.err)
	}
	return nil
}

func (c *registerTestContext) cashSettlementIsAllowed() error {
	if !pricing.CanSettle(enum.PaymentMethodCash, c.reg.Tendered, c.quote().Total) {
		return errors.New("expected cash settlement to be allowed")
	}
	return nil
}

func (c *registerTestContext) cashSettlementIsRefused() error {
	if pricing.CanSettle(enum.PaymentMethodCash, c.reg.Tendered, c.quote().Total) {
		return errors.New("expected cash settlement to be refused")
	}
	return nil
}

func (c *registerTestContext) theCartIsEmpty() error {
	if !c.reg.Cart.IsEmpty() {
		return fmt.Errorf("expected empty cart, got %d lines", len(c.reg.Cart.Lines))
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &registerTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a tax rate of (\d+) percent$`, tc.aTaxRateOfPercent)
	ctx.Step(`^(\d+) of an item priced (\d+) in the cart$`, tc.ofAnItemPricedInTheCart)
	ctx.Step(`^a manual discount of (\d+)$`, tc.aManualDiscountOf)

	// When steps
	ctx.Step(`^I apply promo "([^"]*)"$`, tc.iApplyPromo)
	ctx.Step(`^the customer tenders (\d+) in cash$`, tc.theCustomerTendersInCash)
	ctx.Step(`^the register is reset twice$`, tc.theRegisterIsResetTwice)

	// Then steps
	ctx.Step(`^the subtotal is (\d+)$`, tc.theSubtotalIs)
	ctx.Step(`^the tax is (\d+)$`, tc.theTaxIs)
	ctx.Step(`^the total is (\d+)$`, tc.theTotalIs)
	ctx.Step(`^the discount is (\d+)$`, tc.theDiscountIs)
	ctx.Step(`^the change is (\d+)$`, tc.theChangeIs)
	ctx.Step(`^the tendered amount is (\d+)$`, tc.theTenderedAmountIs)
	ctx.Step(`^the promo is rejected with minimum (\d+)$`, tc.thePromoIsRejectedWithMinimum)
	ctx.Step(`^the promo is rejected as not found$`, tc.thePromoIsRejectedAsNotFound)
	ctx.Step(`^cash settlement is allowed$`, tc.cashSettlementIsAllowed)
	ctx.Step(`^cash settlement is refused$`, tc.cashSettlementIsRefused)
	ctx.Step(`^the cart is empty$`, tc.theCartIsEmpty)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"../../features/register.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
