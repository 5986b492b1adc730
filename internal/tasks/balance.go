package tasks

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/samachi/glowctl/internal/probe"
)

// VerifyBalance tops up a customer by a known amount, reads the balance back and
// reports which unit scaling explains the reported virtual_money.
func (r *Runner) VerifyBalance(ctx context.Context) int {
	r.header("Glownet Balance Unit Verification")

	ev, ok, code := r.chooseEvent(ctx)
	if !ok {
		return code
	}
	r.rule("-", 40)
	event := ev.Identifier()

	customer, err := r.Prompt.Required(fmt.Sprintf(
		"Enter the Customer ID (numeric) or Customer UID (string) for event '%s' to test", orNA(ev.Name)))
	if err != nil {
		return r.promptFailed(err)
	}
	amount, err := r.Prompt.Decimal(fmt.Sprintf(
		"Enter the amount in standard units (e.g., 10.50) to top-up for Customer %s", customer))
	if err != nil {
		return r.promptFailed(err)
	}
	mult := decimal.NewFromInt(int64(r.Cfg.Defaults.TopupMultiplier))
	scaled := amount.Mul(mult).Round(0)
	if !scaled.BigInt().IsInt64() {
		r.printf("[FAIL] Amount %s is too large to send as credits.\n", amount)
		return ExitFail
	}
	credits := scaled.IntPart()

	r.rule("-", 40)
	r.printf("Step 1: Performing virtual top-up of %s (%d credits) for Customer %s in Event %s...\n",
		amount, credits, customer, orNA(ev.Name))
	if err := r.API.VirtualTopup(ctx, event, customer, credits, r.Cfg.Defaults.TopupGateway); err != nil {
		r.printf("[FAIL] Top-up failed: %v\n", err)
		r.println("Cannot verify balance unit.")
		return ExitFail
	}
	r.println("[OK  ] Virtual top-up accepted.")

	r.rule("-", 40)
	r.printf("Step 2: Fetching customer details for Customer %s to check balance...\n", customer)
	r.Sleep(r.Cfg.Defaults.SettleDelay)
	cu, err := r.API.GetCustomer(ctx, event, customer)
	if err != nil {
		r.printf("[FAIL] Failed to fetch details for customer %s: %v\n", customer, err)
		return ExitFail
	}

	r.rule("-", 40)
	r.println("Verification Results:")
	r.printf("  Customer ID: %s\n", orNA(cu.ID.String()))
	r.printf("  Customer Email: %s\n", orNA(cu.Email))
	r.printf("  Raw 'virtual_money' field from API: %v (type: %s)\n", cu.VirtualMoney, jsonType(cu.VirtualMoney))
	r.printf("  Raw 'money' field from API (if present): %v (type: %s)\n", cu.Money, jsonType(cu.Money))

	obs := probe.Observation{
		Expected:  amount,
		Scales:    r.Cfg.Scales(),
		Tolerance: r.Cfg.Tolerance(),
	}
	obs.Raw = cu.VirtualMoney
	vm := probe.Classify(obs)
	obs.Raw = cu.Money
	m := probe.Classify(obs)
	r.Log.Info("balance unit classified",
		zap.String("virtual_money", vm.String()),
		zap.String("money", m.String()))

	r.rule("-", 40)
	r.println("Analysis:")
	r.printf("  You topped up %s standard units, sent as %d credits.\n", amount, credits)
	r.printf("  virtual_money: %s\n", vm)
	r.explain(vm, amount, mult)
	r.printf("  money (for comparison): %s\n", m)
	r.rule("-", 40)

	if vm.Outcome != probe.Match {
		return ExitFail
	}
	return ExitOK
}

// explain prints operator guidance for a virtual_money classification.
func (r *Runner) explain(c probe.Classification, amount, mult decimal.Decimal) {
	switch c.Outcome {
	case probe.Unparseable:
		r.println("  'virtual_money' is null, not present, or could not be parsed. Cannot determine unit.")
		r.println("  Check the top-up and the customer record.")
	case probe.Match:
		switch {
		case c.Scale.Equal(mult):
			r.printf("  CONFIRMED: virtual_money (%s) is reported in CENTS. Divide by %s to get standard units.\n", c.Observed, mult)
		case c.Scale.Equal(decimal.NewFromInt(1)):
			r.printf("  virtual_money (%s) matches the amount in STANDARD UNITS (%s). Do not divide it.\n", c.Observed, amount)
		default:
			r.printf("  virtual_money (%s) is %s times the standard amount.\n", c.Observed, c.Scale)
		}
	case probe.Ambiguous:
		r.println("  Several scalings explain the value. Repeat with a non-zero amount that tells them apart.")
	case probe.NoMatch:
		r.println("  UNCLEAR: no candidate scaling matches. Further investigation needed. Consider:")
		r.println("    - Latency in Glownet balance updates.")
		r.println("    - A previous balance on the customer that was not zeroed out.")
		r.println("    - How Glownet interprets 'credits' in the top-up payload.")
		r.println("    - Glownet's rounding or precision for virtual_money.")
	}
}

// jsonType names the JSON type of a decoded value.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
