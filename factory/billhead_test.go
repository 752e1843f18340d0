package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/generic"
)

const waterJSON = `{
	"id": "water-a",
	"code": "WTR",
	"name": "Water",
	"category": "utility",
	"calculation_type": "per_unit",
	"per_unit_rate": "12.50",
	"gst": {"is_applicable": true, "cgst_pct": "9", "sgst_pct": "9"},
	"late_payment": {
		"is_applicable": true,
		"grace_period_days": 5,
		"charge_type": "percentage",
		"charge_value": 2,
		"compounding": "weekly"
	},
	"due_days": 10
}`

func TestParseBillHead(t *testing.T) {
	f := factory.NewBillHeadFactory()

	spec, err := f.ParseBillHead([]byte(waterJSON))

	require.NoError(t, err)
	assert.Equal(t, "WTR", spec.Code)
	assert.Equal(t, billing.CalcPerUnit, spec.CalculationType)
	assert.Equal(t, "12.5", spec.PerUnitRate.String())
	assert.True(t, spec.GST.IsApplicable)
	assert.Equal(t, "9", spec.GST.CGSTPct.String())
	assert.True(t, spec.GST.IGSTPct.IsZero())
	assert.Equal(t, billing.LateFeePercentage, spec.LatePayment.ChargeType)
	assert.Equal(t, "2", spec.LatePayment.ChargeValue.String())
	assert.Equal(t, generic.FreqWeekly, spec.LatePayment.Compounding)
	assert.Equal(t, "Units", spec.Label())
}

func TestParseBillHead_Defaults(t *testing.T) {
	spec, err := factory.NewBillHeadFactory().ParseBillHead([]byte(`{
		"code": "CLB", "name": "Clubhouse", "category": "amenity",
		"calculation_type": "fixed", "fixed_amount": 1500,
		"late_payment": {"is_applicable": true, "charge_value": "100"}
	}`))

	require.NoError(t, err)
	assert.Equal(t, billing.LateFeeFixed, spec.LatePayment.ChargeType)
	assert.Equal(t, generic.FreqMonthly, spec.LatePayment.Compounding)
	assert.Equal(t, "Hours", spec.Label())
}

func TestParseBillHead_RejectsGSTAboveCeiling(t *testing.T) {
	// GIVEN: CGST at 15%, one point above the legal ceiling
	data := `{
		"code": "WTR", "name": "Water", "category": "utility",
		"calculation_type": "fixed", "fixed_amount": "100",
		"gst": {"is_applicable": true, "cgst_pct": "15", "sgst_pct": "9"}
	}`

	// WHEN
	_, err := factory.NewBillHeadFactory().ParseBillHead([]byte(data))

	// THEN: rejected at configuration time
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrValidation)
	var verr *billing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "gst.cgst_pct", verr.Field)
}

func TestParseBillHead_RejectsUnsafeFormula(t *testing.T) {
	data := `{
		"code": "ELC", "name": "Electricity", "category": "utility",
		"calculation_type": "formula", "per_unit_rate": "8",
		"formula": "unitUsage * rate + os.exit(1)"
	}`

	_, err := factory.NewBillHeadFactory().ParseBillHead([]byte(data))

	assert.ErrorIs(t, err, billing.ErrFormula)
}

func TestParseBillHead_MalformedJSON(t *testing.T) {
	_, err := factory.NewBillHeadFactory().ParseBillHead([]byte(`{"code":`))

	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestParseBillHead_UnknownCategoryIsRegistered(t *testing.T) {
	spec, err := factory.NewBillHeadFactory().ParseBillHead([]byte(`{
		"code": "SEC", "name": "Security", "category": "security",
		"calculation_type": "fixed", "fixed_amount": "300"
	}`))

	require.NoError(t, err)
	c, ok := generic.LookupCategory("security")
	require.True(t, ok)
	assert.Equal(t, spec.Category, c.ID)
}

func TestBillHeadRoundTrip(t *testing.T) {
	f := factory.NewBillHeadFactory()
	spec, err := f.ParseBillHead([]byte(waterJSON))
	require.NoError(t, err)

	data, err := f.MarshalBillHead(spec)
	require.NoError(t, err)
	again, err := f.ParseBillHead(data)
	require.NoError(t, err)

	assert.Equal(t, spec.Code, again.Code)
	assert.True(t, spec.PerUnitRate.Equal(again.PerUnitRate))
	assert.True(t, spec.GST.SGSTPct.Equal(again.GST.SGSTPct))
	assert.Equal(t, spec.LatePayment.Compounding, again.LatePayment.Compounding)
	assert.Equal(t, spec.DueDays, again.DueDays)
}

func TestParseCharge(t *testing.T) {
	var cj factory.ChargeJSON
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "park-1", "charge_type": "parking", "calculation_type": "per_unit",
		"per_unit_rate": "250", "unit_usage": "2"
	}`), &cj))

	spec, in, err := factory.NewBillHeadFactory().ParseCharge(cj)

	require.NoError(t, err)
	assert.Equal(t, billing.ChargeParking, spec.ChargeType)
	require.True(t, in.UnitUsage.Valid)
	assert.Equal(t, "2", in.UnitUsage.Decimal.String())
	assert.False(t, in.CustomAmount.Valid)
}

func TestParseCharge_RequiresID(t *testing.T) {
	_, _, err := factory.NewBillHeadFactory().ParseCharge(factory.ChargeJSON{
		ChargeType: "parking", CalculationType: "fixed",
	})

	assert.ErrorIs(t, err, billing.ErrValidation)
}
