package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/generic"
)

func oct(day int) generic.TimePoint { return generic.NewTimePoint(2026, time.October, day) }
func nov(day int) generic.TimePoint { return generic.NewTimePoint(2026, time.November, day) }

func lateCfg(kind billing.LateFeeType, value string, freq generic.AccrualFrequency) billing.LatePaymentConfig {
	return billing.LatePaymentConfig{
		IsApplicable:    true,
		GracePeriodDays: 5,
		ChargeType:      kind,
		ChargeValue:     dec(value),
		Compounding:     freq,
	}
}

func TestLateFee_NoChargeWithinGrace(t *testing.T) {
	// GIVEN: due Oct 10 with 5 days grace
	cfg := lateCfg(billing.LateFeeFixed, "100", generic.FreqMonthly)

	// WHEN: evaluated on the last grace day
	fee, err := billing.LateFeeAccrual{}.Evaluate(oct(10), oct(15), cfg, dec("1000"))

	// THEN
	require.NoError(t, err)
	assert.False(t, fee.Applicable)
	assert.True(t, fee.Amount.IsZero())
	assert.True(t, fee.GraceEnds.Equal(oct(15)))
}

func TestLateFee_FixedMonthly(t *testing.T) {
	cfg := lateCfg(billing.LateFeeFixed, "100", generic.FreqMonthly)
	accrual := billing.LateFeeAccrual{}

	tests := []struct {
		at      generic.TimePoint
		periods int
		want    string
	}{
		{oct(16), 1, "100.00"},
		{nov(15), 1, "100.00"},
		{nov(16), 2, "200.00"},
	}
	for _, tt := range tests {
		fee, err := accrual.Evaluate(oct(10), tt.at, cfg, dec("1000"))
		require.NoError(t, err)
		assert.True(t, fee.Applicable)
		assert.Equal(t, tt.periods, fee.Periods, "at %s", tt.at)
		assert.Equal(t, tt.want, money(fee.Amount), "at %s", tt.at)
	}
}

func TestLateFee_PercentageCompoundsMonthly(t *testing.T) {
	cfg := lateCfg(billing.LateFeePercentage, "2", generic.FreqMonthly)
	accrual := billing.LateFeeAccrual{}

	// First month: base * 2%
	fee, err := accrual.Evaluate(oct(10), oct(20), cfg, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "20.00", money(fee.Amount))

	// Second month: 1000 * (1.02^2 - 1)
	fee, err = accrual.Evaluate(oct(10), nov(16), cfg, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "40.40", money(fee.Amount))
}

func TestLateFee_Daily(t *testing.T) {
	cfg := lateCfg(billing.LateFeeFixed, "10", generic.FreqDaily)

	fee, err := billing.LateFeeAccrual{}.Evaluate(oct(10), oct(18), cfg, dec("1000"))

	require.NoError(t, err)
	assert.Equal(t, 3, fee.Periods)
	assert.Equal(t, "30.00", money(fee.Amount))
}

func TestLateFee_Weekly(t *testing.T) {
	cfg := lateCfg(billing.LateFeeFixed, "50", generic.FreqWeekly)
	accrual := billing.LateFeeAccrual{}

	fee, err := accrual.Evaluate(oct(10), oct(22), cfg, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "50.00", money(fee.Amount))

	fee, err = accrual.Evaluate(oct(10), oct(23), cfg, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", money(fee.Amount))
}

func TestLateFee_SameDateSameAmount(t *testing.T) {
	// GIVEN: a percentage fee evaluated well past grace
	cfg := lateCfg(billing.LateFeePercentage, "1.5", generic.FreqDaily)
	accrual := billing.LateFeeAccrual{}

	// WHEN: evaluated twice on the same date
	first, err := accrual.Evaluate(oct(10), nov(20), cfg, dec("2500"))
	require.NoError(t, err)
	second, err := accrual.Evaluate(oct(10), nov(20), cfg, dec("2500"))
	require.NoError(t, err)

	// THEN: no double accrual
	assert.Equal(t, money(first.Amount), money(second.Amount))
	assert.Equal(t, first.Periods, second.Periods)
}

func TestLateFee_NotApplicable(t *testing.T) {
	cfg := lateCfg(billing.LateFeeFixed, "100", generic.FreqMonthly)
	cfg.IsApplicable = false

	fee, err := billing.LateFeeAccrual{}.Evaluate(oct(10), nov(30), cfg, dec("1000"))

	require.NoError(t, err)
	assert.True(t, fee.Amount.IsZero())
}

func TestLateFee_InvalidConfig(t *testing.T) {
	cfg := lateCfg(billing.LateFeeFixed, "100", "yearly")

	_, err := billing.LateFeeAccrual{}.Evaluate(oct(10), nov(30), cfg, dec("1000"))

	assert.ErrorIs(t, err, billing.ErrValidation)
}
