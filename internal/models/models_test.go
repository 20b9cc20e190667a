package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRenewalPremium(t *testing.T) {
	assert.Equal(t, 1100.0, RenewalPremium(1000))
	assert.Equal(t, 880.0, RenewalPremium(800))
	assert.Equal(t, 135.3, RenewalPremium(123))
}

func TestAmountMinor(t *testing.T) {
	cents, ok := AmountMinor(123.456)
	assert.True(t, ok)
	assert.Equal(t, int64(12346), cents)

	cents, ok = AmountMinor(MaxPremium)
	assert.True(t, ok)
	assert.Equal(t, int64(9_999_999_999), cents)

	for _, v := range []float64{1e17, 1e300, -1e300, math.Inf(1), math.NaN()} {
		_, ok := AmountMinor(v)
		assert.False(t, ok, "%v", v)
	}
}

func TestParsePolicyType(t *testing.T) {
	p, ok := ParsePolicyType(" Auto ")
	assert.True(t, ok)
	assert.Equal(t, PolicyAuto, p)

	p, ok = ParsePolicyType("habitation")
	assert.True(t, ok)
	assert.Equal(t, PolicyHome, p)

	_, ok = ParsePolicyType("pet")
	assert.False(t, ok)
}

func TestDecodePolicyDetails(t *testing.T) {
	d, err := DecodePolicyDetails(PolicyAuto, []byte(`{"make":"Renault","model":"Clio","year":2020,"licensePlate":"AB-123-CD"}`))
	require.NoError(t, err)
	auto, ok := d.(*AutoDetails)
	require.True(t, ok)
	assert.Equal(t, "Clio", auto.Model)
	assert.Equal(t, PolicyAuto, d.PolicyType())

	_, err = DecodePolicyDetails(PolicyAuto, []byte(`{"make":"Renault","model":"Clio","year":2020,"licensePlate":"X","destination":"Rome"}`))
	assert.ErrorIs(t, err, apperr.ErrValidation, "fields of another variant are rejected")

	_, err = DecodePolicyDetails(PolicyHealth, []byte(`{"coverageLevel":"gold","beneficiaries":1}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = DecodePolicyDetails(PolicyTravel, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = DecodePolicyDetails(PolicyType("pet"), []byte(`{}`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestContractJSONKeepsVariant(t *testing.T) {
	in := Contract{
		ID:         NewID(),
		PolicyType: PolicyHome,
		StartDate:  date("2024-01-01"),
		EndDate:    date("2025-01-01"),
		Details:    &HomeDetails{Address: "1 rue de Paris", PropertyType: "house", AreaSqm: 90},
		Status:     ContractActive,
	}
	b, err := json.Marshal(&in)
	require.NoError(t, err)

	var out Contract
	require.NoError(t, json.Unmarshal(b, &out))
	home, ok := out.Details.(*HomeDetails)
	require.True(t, ok)
	assert.Equal(t, 90.0, home.AreaSqm)
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, out.EndDate.Equal(in.EndDate))
}

func TestContractActiveAt(t *testing.T) {
	c := Contract{Status: ContractActive, StartDate: date("2024-01-01"), EndDate: date("2025-01-01")}
	assert.True(t, c.ActiveAt(date("2024-06-01")))
	assert.True(t, c.ActiveAt(date("2025-01-01")))
	assert.False(t, c.ActiveAt(date("2025-01-02")))

	c.Status = ContractExpired
	assert.False(t, c.ActiveAt(date("2024-06-01")))
}

func TestPolicyNumber(t *testing.T) {
	n := PolicyNumber(date("2025-03-04"), "01hzy3k5v8q9r0abcdefgh1234")
	assert.Equal(t, "POL-2025-EFGH1234", n)
}

func TestIDs(t *testing.T) {
	id := NewID()
	assert.True(t, ValidID(id))
	assert.False(t, ValidID("64b7f2c1e4b0a1a2b3c4d5e6"))
	assert.False(t, ValidID(""))
}

func TestUserDefaults(t *testing.T) {
	u := User{Name: "Ada", Lastname: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", u.FullName())
	assert.Equal(t, DefaultSettings(), u.EffectiveSettings())
	assert.Equal(t, "Français", u.EffectiveSettings().Language)

	r, ok := ParseRole("Supervisor")
	assert.True(t, ok)
	assert.Equal(t, RoleSupervisor, r)
	assert.True(t, r.Staff())
}
