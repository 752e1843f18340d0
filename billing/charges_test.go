package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
)

func TestChargeSet_DuplicateRejected(t *testing.T) {
	// GIVEN: a set with the parking charge
	set := &billing.ChargeSet{}
	require.NoError(t, set.Add(parkingCharge()))

	// WHEN: the same source is added again
	err := set.Add(parkingCharge())

	// THEN: rejected, size unchanged
	var de *billing.DuplicateChargeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "head-parking", de.SourceSpecID)
	assert.Equal(t, 1, set.Len())
	assert.Equal(t, "500.00", money(set.Total()))
}

func TestChargeSet_TotalFollowsRemove(t *testing.T) {
	set, err := billing.NewChargeSet(
		parkingCharge(),
		billing.AdditionalCharge{SourceSpecID: "club", ChargeType: billing.ChargeClubhouse, Amount: dec("250.25")},
		billing.AdditionalCharge{SourceSpecID: "sink", ChargeType: billing.ChargeSinkingFund, Amount: dec("100")},
	)
	require.NoError(t, err)
	assert.Equal(t, "850.25", money(set.Total()))

	require.NoError(t, set.Remove(1))

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, "600.00", money(set.Total()))
	assert.Equal(t, "sink", set.Charges()[1].SourceSpecID)
}

func TestChargeSet_RemoveOutOfRange(t *testing.T) {
	set := &billing.ChargeSet{}
	assert.ErrorIs(t, set.Remove(0), billing.ErrValidation)
	assert.ErrorIs(t, set.Remove(-1), billing.ErrValidation)
}

func TestChargeSet_RejectsUnknownType(t *testing.T) {
	set := &billing.ChargeSet{}
	err := set.Add(billing.AdditionalCharge{SourceSpecID: "x", ChargeType: "gym", Amount: dec("1")})
	assert.ErrorIs(t, err, billing.ErrValidation)
	assert.Equal(t, 0, set.Len())
}

func TestChargeSet_ChargesIsACopy(t *testing.T) {
	set, err := billing.NewChargeSet(parkingCharge())
	require.NoError(t, err)

	charges := set.Charges()
	charges[0].Amount = dec("9999")

	assert.Equal(t, "500.00", money(set.Total()))
}

func TestNewAdditionalCharge_UsesCalculator(t *testing.T) {
	spec := billing.AdditionalChargeSpec{
		ID:         "head-electricity",
		ChargeType: billing.ChargeElectricity,
		ChargeSpec: billing.ChargeSpec{CalculationType: billing.CalcPerUnit, PerUnitRate: dec("8.5")},
	}

	c, err := billing.NewAdditionalCharge(billing.NewChargeCalculator(), spec, billing.Usage(dec("40")))

	require.NoError(t, err)
	assert.Equal(t, "340.00", money(c.Amount))
	assert.Equal(t, billing.ChargeElectricity, c.ChargeType)
	assert.Equal(t, "head-electricity", c.SourceSpecID)
}
