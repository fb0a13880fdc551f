/*
pricing.go - Payment and fee computation

PURPOSE:
  Converts a requested sale-asset amount into the payment-asset amount owed,
  matching the decimal precision of both assets exactly as configured.

THE FORMULA:
  paymentWithoutFee = floor( saleAmount * price * 10^(payDec-2) / 10^saleDec )
  payment           = floor( paymentWithoutFee * (1000 + fee) / 1000 )

  Price is quoted in hundredths of a payment unit per sale unit, which is
  where the 10^(payDec-2) factor comes from. Fees are parts-per-thousand.

TRUNCATION CONTRACT:
  Each floor happens exactly once, after the full multiplication, never
  per-factor. Balance assertions downstream depend on this bit-for-bit, so
  the math runs on integer-valued decimals with QuoRem, not on floats.

SEE ALSO:
  - engine.go: uses paymentWithoutFee for bound checks before charging
*/
package sale

import "github.com/shopspring/decimal"

const feeDenominator = 1000

// Pricing captures everything needed to turn a sale amount into a payment
// amount. Decimals are read from the ledgers once at engine initialization.
type Pricing struct {
	// Price in hundredths of a payment-asset unit per sale-asset unit.
	Price int64

	// BaseFee is the parts-per-thousand surcharge applied when a tier's own
	// fee is zero.
	BaseFee int64

	PaymentDecimals int32
	SaleDecimals    int32
}

// PaymentWithoutFee returns the fee-exclusive payment amount for saleAmount,
// floored once after the full multiplication.
func (p Pricing) PaymentWithoutFee(saleAmount Amount) Amount {
	num := saleAmount.Value.
		Mul(decimal.NewFromInt(p.Price)).
		Mul(decimal.New(1, p.PaymentDecimals-2))
	return Amount{Value: num}.FloorDiv(decimal.New(1, p.SaleDecimals))
}

// ApplyFee returns the fee-inclusive payment amount, floored once.
func (p Pricing) ApplyFee(paymentWithoutFee Amount, tierFee int64) Amount {
	fee := p.EffectiveFee(tierFee)
	num := paymentWithoutFee.Value.Mul(decimal.NewFromInt(feeDenominator + fee))
	return Amount{Value: num}.FloorDiv(decimal.NewFromInt(feeDenominator))
}

// EffectiveFee resolves the surcharge for a tier: the tier's own fee when
// nonzero, otherwise the base fee.
func (p Pricing) EffectiveFee(tierFee int64) int64 {
	if tierFee != 0 {
		return tierFee
	}
	return p.BaseFee
}

// Payment is PaymentWithoutFee followed by ApplyFee; the intermediate amount
// is returned as well because the eligibility bound check needs it.
func (p Pricing) Payment(saleAmount Amount, tierFee int64) (withoutFee, withFee Amount) {
	withoutFee = p.PaymentWithoutFee(saleAmount)
	withFee = p.ApplyFee(withoutFee, tierFee)
	return withoutFee, withFee
}
