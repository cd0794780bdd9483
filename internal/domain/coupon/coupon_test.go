package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCoupon_Discount(t *testing.T) {
	tests := []struct {
		name     string
		coupon   Coupon
		subtotal decimal.Decimal
		want     decimal.Decimal
	}{
		{
			name:     "percentage 10% off 1000",
			coupon:   Coupon{Code: "TEN", Type: DiscountPercentage, Amount: d("10")},
			subtotal: d("1000"),
			want:     d("100"),
		},
		{
			name:     "percentage keeps full precision",
			coupon:   Coupon{Code: "FIFTEEN", Type: DiscountPercentage, Amount: d("15")},
			subtotal: d("29.97"),
			want:     d("4.4955"),
		},
		{
			name:     "fixed 9 off 100",
			coupon:   Coupon{Code: "FLAT9", Type: DiscountFixed, Amount: d("9")},
			subtotal: d("100"),
			want:     d("9"),
		},
		{
			name:     "fixed capped at subtotal",
			coupon:   Coupon{Code: "BIG", Type: DiscountFixed, Amount: d("200")},
			subtotal: d("100"),
			want:     d("100"),
		},
		{
			name:     "percentage 100% equals subtotal",
			coupon:   Coupon{Code: "FREE", Type: DiscountPercentage, Amount: d("100")},
			subtotal: d("42.50"),
			want:     d("42.50"),
		},
		{
			name:     "unsupported type gives nothing",
			coupon:   Coupon{Code: "BAD", Type: "bogus", Amount: d("10")},
			subtotal: d("100"),
			want:     decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.coupon.Discount(tt.subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
		})
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	coupons := []Coupon{
		{Code: "SAVE10", Type: DiscountPercentage, Amount: d("10")},
		{Code: "Flat5", Type: DiscountFixed, Amount: d("5")},
	}

	c, err := Lookup(coupons, "save10")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)

	c, err = Lookup(coupons, " FLAT5 ")
	require.NoError(t, err)
	assert.Equal(t, "Flat5", c.Code)

	_, err = Lookup(coupons, "BOGUS")
	require.ErrorIs(t, err, ErrInvalidCoupon)

	_, err = Lookup(coupons, "")
	require.ErrorIs(t, err, ErrInvalidCoupon)
}

func TestLookup_ReturnsCopy(t *testing.T) {
	coupons := []Coupon{{Code: "SAVE10", Type: DiscountPercentage, Amount: d("10")}}

	c, err := Lookup(coupons, "SAVE10")
	require.NoError(t, err)
	c.Amount = d("99")

	assert.True(t, d("10").Equal(coupons[0].Amount))
}

func TestValidate(t *testing.T) {
	c := &Coupon{Code: "MIN500", Type: DiscountPercentage, Amount: d("10"), MinAmount: d("500")}

	require.NoError(t, Validate(c, d("500")))
	require.NoError(t, Validate(c, d("1000")))

	err := Validate(c, d("499.99"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
	assert.Contains(t, err.Error(), "below minimum")

	bad := &Coupon{Code: "BAD", Type: "bogus", Amount: d("10")}
	require.ErrorIs(t, Validate(bad, d("100")), ErrInvalidCoupon)
}

func TestResolve_MinAmountNotMet(t *testing.T) {
	coupons := []Coupon{{Code: "BIGSPEND", Type: DiscountPercentage, Amount: d("10"), MinAmount: d("1500")}}

	_, err := Resolve(coupons, "bigspend", d("1000"))
	require.ErrorIs(t, err, ErrInvalidCoupon)

	c, err := Resolve(coupons, "bigspend", d("1500"))
	require.NoError(t, err)
	assert.Equal(t, "BIGSPEND", c.Code)
}

func TestCoupon_Check(t *testing.T) {
	require.NoError(t, Coupon{Code: "OK", Type: DiscountFixed, Amount: d("1")}.Check())
	require.Error(t, Coupon{Code: "NEG", Type: DiscountFixed, Amount: d("-1")}.Check())
	require.Error(t, Coupon{Code: "NEGMIN", Type: DiscountFixed, Amount: d("1"), MinAmount: d("-5")}.Check())

	require.NoError(t, Coupon{Code: "FREE", Type: DiscountPercentage, Amount: d("100")}.Check())
	require.Error(t, Coupon{Code: "OVER", Type: DiscountPercentage, Amount: d("100.01")}.Check())
	require.NoError(t, Coupon{Code: "BIGFLAT", Type: DiscountFixed, Amount: d("250")}.Check(), "fixed amounts are capped at the subtotal")
}

func TestResolve_RejectsMisconfiguredPercentage(t *testing.T) {
	coupons := []Coupon{{Code: "OVER", Type: DiscountPercentage, Amount: d("150")}}

	_, err := Resolve(coupons, "over", d("100"))
	require.ErrorIs(t, err, ErrInvalidCoupon)
}
