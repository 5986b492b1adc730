package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samachi/glowctl/internal/glownet"
	"github.com/samachi/glowctl/internal/probe"
)

// refundDelay paces refund calls.
const refundDelay = 300 * time.Millisecond

// ResetBalances refunds customers of one event that still hold a balance.
func (r *Runner) ResetBalances(ctx context.Context) int {
	r.header("Glownet Balance Reset")

	ev, ok, code := r.chooseEvent(ctx)
	if !ok {
		return code
	}
	event := ev.Identifier()
	r.rule("-", 50)
	r.printf("Fetching customers for event '%s' to check balances...\n", orNA(ev.Name))

	customers, err := r.API.ListCustomers(ctx, event)
	if err != nil {
		r.printf("[FAIL] Could not retrieve customers for event '%s': %v\n", event, err)
		return ExitFail
	}
	if len(customers) == 0 {
		r.printf("No customers found for event '%s'. Nothing to do.\n", event)
		return ExitOK
	}

	withBalance := r.confirmBalances(ctx, event, customers)
	if len(withBalance) == 0 {
		r.println("\nNo customers found with a non-zero virtual or standard money balance in their detailed view for this event.")
		return ExitOK
	}

	r.println("\nCustomers with detected non-zero balances:")
	r.rule("-", 50)
	for i, c := range withBalance {
		r.printf("  %d. ID: %s, Name: %s, Email: %s\n", i+1, c.ID, c.Name(), orNA(c.Email))
		r.printf("     Virtual Money: %s, Standard Money: %s\n", display(c.VirtualMoney), display(c.Money))
		if len(c.Balances) > 0 {
			b, _ := json.Marshal(c.Balances)
			r.printf("     Balances Object: %s\n", b)
		}
		r.rule("-", 20)
	}

	all, err := r.Prompt.Confirm("Reset ALL listed customers?")
	if err != nil {
		return r.promptFailed(err)
	}
	if !all {
		r.println("You chose not to reset all. Please confirm for each customer.")
	}

	attempted, failed := 0, 0
	for _, c := range withBalance {
		if !all {
			yes, err := r.Prompt.Confirm(fmt.Sprintf("Attempt refund/settlement for Customer ID: %s (%s)?", c.ID, c.Name()))
			if err != nil {
				return r.promptFailed(err)
			}
			if !yes {
				r.printf("  Skipping refund/settlement for customer %s.\n", c.ID)
				continue
			}
		}
		r.printf("Attempting refund/settlement for Customer ID: %s...\n", c.ID)
		err := r.API.RefundCustomer(ctx, event, c.ID.String(), r.Cfg.Defaults.RefundGateway)
		switch {
		case err == nil:
			r.printf("  [OK  ] refund requested for customer %s\n", c.ID)
			attempted++
		case errors.Is(err, glownet.ErrNothingToRefund):
			r.printf("  [SKIP] customer %s: %v\n", c.ID, glownet.ErrNothingToRefund)
		default:
			r.printf("  [ERR ] customer %s: %v\n", c.ID, err)
			failed++
		}
		r.Sleep(refundDelay)
	}

	r.rule("-", 50)
	r.printf("Finished. Attempted refund/settlement for %d customer(s).\n", attempted)
	r.println("IMPORTANT: Please manually verify the balances and check for any refund records in Glownet for the processed customers.")
	if failed > 0 {
		return ExitFail
	}
	return ExitOK
}

// confirmBalances re-fetches every customer whose list entry shows a balance and
// keeps those whose detailed record still does.
func (r *Runner) confirmBalances(ctx context.Context, event string, customers []glownet.Customer) []glownet.Customer {
	r.println("Checking customer balances (this might take a moment for many customers)...")
	var out []glownet.Customer
	for i, c := range customers {
		switch {
		case c.ID == "":
			r.println("  Skipping customer entry with no ID.")
		case hasBalance(c):
			r.printf("  Customer %s (Summary VM: %s, M: %s) might have a balance. Fetching details...\n",
				c.ID, display(c.VirtualMoney), display(c.Money))
			d, err := r.API.GetCustomer(ctx, event, c.ID.String())
			if err != nil {
				r.printf("  Could not fetch details for customer %s to confirm balance: %v\n", c.ID, err)
				break
			}
			if hasBalance(*d) {
				if d.ID == "" {
					d.ID = c.ID
				}
				r.printf("    -> Confirmed balance for Customer ID: %s, Name: %s\n", d.ID, d.Name())
				out = append(out, *d)
			}
		}
		if (i+1)%10 == 0 {
			r.printf("  Checked %d/%d customers...\n", i+1, len(customers))
		}
	}
	return out
}

// hasBalance is true when virtual_money, money or any balances entry parses to a
// positive number.
func hasBalance(c glownet.Customer) bool {
	if positive(c.VirtualMoney) || positive(c.Money) {
		return true
	}
	for _, v := range c.Balances {
		if positive(v) {
			return true
		}
	}
	return false
}

func positive(raw any) bool {
	d, ok := probe.ParseValue(raw)
	return ok && d.IsPositive()
}

func display(raw any) string {
	if d, ok := probe.ParseValue(raw); ok {
		return d.String()
	}
	return "0"
}
