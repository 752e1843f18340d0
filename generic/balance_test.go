package generic_test

import (
	"testing"
	"time"

	"github.com/warp/billing-engine/generic"
)

func TestBalance_ApplyFlipsSide(t *testing.T) {
	b := generic.ZeroBalance()

	b = b.Apply(d("1000"), d("0"))
	if b.Side != generic.SideDebit || !b.Amount.Equal(d("1000")) {
		t.Fatalf("expected 1000.00 Dr, got %s", b)
	}

	b = b.Apply(d("0"), d("1500"))
	if b.Side != generic.SideCredit || !b.Amount.Equal(d("500")) {
		t.Errorf("expected 500.00 Cr, got %s", b)
	}
	if b.String() != "500.00 Cr" {
		t.Errorf("unexpected rendering %q", b.String())
	}
}

func TestBalance_NewBalanceNegativeAmount(t *testing.T) {
	b := generic.NewBalance(d("-20"), generic.SideCredit)
	if b.Side != generic.SideDebit || !b.Amount.Equal(d("20")) {
		t.Errorf("expected 20.00 Dr, got %s", b)
	}
}

func TestBalance_ZeroEqualsRegardlessOfSide(t *testing.T) {
	a := generic.Balance{Amount: d("0"), Side: generic.SideCredit}
	if !a.Equal(generic.ZeroBalance()) {
		t.Error("zero balances should compare equal")
	}
}

func TestMonthsStarted(t *testing.T) {
	from := generic.NewTimePoint(2026, time.January, 16)

	tests := []struct {
		to   generic.TimePoint
		want int
	}{
		{generic.NewTimePoint(2026, time.January, 15), 0},
		{generic.NewTimePoint(2026, time.January, 16), 1},
		{generic.NewTimePoint(2026, time.February, 15), 1},
		{generic.NewTimePoint(2026, time.February, 16), 2},
		{generic.NewTimePoint(2026, time.May, 1), 4},
	}
	for _, tt := range tests {
		if got := generic.MonthsStarted(from, tt.to); got != tt.want {
			t.Errorf("MonthsStarted(%s, %s) = %d, want %d", from, tt.to, got, tt.want)
		}
	}
}

func TestPeriodFor_FinancialYear(t *testing.T) {
	pc := generic.PeriodConfig{Type: generic.PeriodFinancialYear}

	p := pc.PeriodFor(generic.NewTimePoint(2027, time.February, 10))
	if !p.Start.Equal(generic.NewTimePoint(2026, time.April, 1)) || !p.End.Equal(generic.NewTimePoint(2027, time.March, 31)) {
		t.Errorf("unexpected financial year %s", p)
	}
}

func TestPeriodFor_Monthly(t *testing.T) {
	pc := generic.PeriodConfig{Type: generic.PeriodMonthly}

	p := pc.PeriodFor(generic.NewTimePoint(2028, time.February, 10))
	if p.End.Day() != 29 {
		t.Errorf("expected leap February to end on 29, got %s", p.End)
	}
}
