/*
balance.go - Side-tagged ledger balances

PURPOSE:
  A ledger balance is presented the way an accountant reads it: an amount
  and the side it sits on ("1,200.00 Dr", "300.00 Cr"). Carrying a bare
  signed number between income accounts (credit-normal) and receivable
  accounts (debit-normal) is how sign-convention bugs creep in, so every
  balance in the engine is a Balance value.

CALCULATION:
  Internally a balance is folded as (debits - credits):
    net > 0  -> {net, Debit}
    net < 0  -> {-net, Credit}
    net == 0 -> {0, Debit}

SEE ALSO:
  - reconcile/reconciler.go: Opening, running and closing balances
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is the side of the ledger a balance sits on.
type Side string

const (
	SideDebit  Side = "Dr"
	SideCredit Side = "Cr"
)

// Balance is a non-negative amount tagged with its side.
type Balance struct {
	Amount decimal.Decimal
	Side   Side
}

// ZeroBalance is the empty balance.
func ZeroBalance() Balance {
	return Balance{Amount: decimal.Zero, Side: SideDebit}
}

// NewBalance builds a tagged balance. Negative amounts flip the side.
func NewBalance(amount decimal.Decimal, side Side) Balance {
	if side == SideCredit {
		return balanceFromNet(amount.Neg())
	}
	return balanceFromNet(amount)
}

func balanceFromNet(net decimal.Decimal) Balance {
	if net.IsNegative() {
		return Balance{Amount: net.Neg(), Side: SideCredit}
	}
	return Balance{Amount: net, Side: SideDebit}
}

// net is debit-positive. It never leaves this package.
func (b Balance) net() decimal.Decimal {
	if b.Side == SideCredit {
		return b.Amount.Neg()
	}
	return b.Amount
}

// Apply posts a debit and a credit against the balance.
func (b Balance) Apply(debit, credit decimal.Decimal) Balance {
	return balanceFromNet(b.net().Add(debit).Sub(credit))
}

// Add combines two balances.
func (b Balance) Add(other Balance) Balance {
	return balanceFromNet(b.net().Add(other.net()))
}

func (b Balance) IsZero() bool { return b.Amount.IsZero() }

func (b Balance) Equal(other Balance) bool {
	if b.IsZero() && other.IsZero() {
		return true
	}
	return b.Side == other.Side && b.Amount.Equal(other.Amount)
}

// String renders "1200.00 Dr".
func (b Balance) String() string {
	side := b.Side
	if side == "" {
		side = SideDebit
	}
	return fmt.Sprintf("%s %s", b.Amount.StringFixed(MoneyPlaces), side)
}
