package sale

import (
	"testing"
)

// =============================================================================
// PAYMENT FORMULA TESTS
// =============================================================================
// paymentWithoutFee = floor( saleAmount * price * 10^(payDec-2) / 10^saleDec )
// payment           = floor( paymentWithoutFee * (1000 + fee) / 1000 )

func TestPricing_PaymentWithoutFee(t *testing.T) {
	tests := []struct {
		name    string
		pricing Pricing
		sale    Amount
		want    string
	}{
		{
			// 18/18 decimals, price 100 = 1 payment unit per sale unit
			name:    "one to one at matching decimals",
			pricing: Pricing{Price: 100, PaymentDecimals: 18, SaleDecimals: 18},
			sale:    Units(100, 18),
			want:    Units(100, 18).String(),
		},
		{
			// 6/18 decimals, price 105: 100 sale units cost 105 payment units
			name:    "mixed decimals",
			pricing: Pricing{Price: 105, PaymentDecimals: 6, SaleDecimals: 18},
			sale:    Units(100, 18),
			want:    "105000000",
		},
		{
			// 7 base units at saleDecimals 1: 7*3*1/10 = 2.1 -> 2
			name:    "truncates once after full multiplication",
			pricing: Pricing{Price: 3, PaymentDecimals: 2, SaleDecimals: 1},
			sale:    NewAmount(7),
			want:    "2",
		},
		{
			name:    "sub-unit result floors to zero",
			pricing: Pricing{Price: 1, PaymentDecimals: 2, SaleDecimals: 6},
			sale:    NewAmount(999),
			want:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.pricing.PaymentWithoutFee(tt.sale)
			if got.String() != tt.want {
				t.Errorf("PaymentWithoutFee(%s) = %s, want %s", tt.sale, got, tt.want)
			}
		})
	}
}

func TestPricing_ApplyFee(t *testing.T) {
	tests := []struct {
		name    string
		tierFee int64
		baseFee int64
		amount  Amount
		want    string
	}{
		{name: "tier fee applies", tierFee: 20, baseFee: 50, amount: NewAmount(1000), want: "1020"},
		{name: "zero tier fee falls back to base fee", tierFee: 0, baseFee: 50, amount: NewAmount(1000), want: "1050"},
		{name: "both zero leaves amount unchanged", tierFee: 0, baseFee: 0, amount: NewAmount(1000), want: "1000"},
		// floor(7 * 1015 / 1000) = floor(7.105) = 7
		{name: "fee result truncates", tierFee: 15, baseFee: 0, amount: NewAmount(7), want: "7"},
		// floor(999 * 1001 / 1000) = floor(999.999) = 999
		{name: "one part per thousand on 999", tierFee: 1, baseFee: 0, amount: NewAmount(999), want: "999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pricing{Price: 100, BaseFee: tt.baseFee, PaymentDecimals: 2, SaleDecimals: 0}
			got := p.ApplyFee(tt.amount, tt.tierFee)
			if got.String() != tt.want {
				t.Errorf("ApplyFee(%s, fee=%d, base=%d) = %s, want %s",
					tt.amount, tt.tierFee, tt.baseFee, got, tt.want)
			}
		})
	}
}

func TestPricing_TruncationHappensOncePerStep(t *testing.T) {
	// 7 * 3 / 10 = 2 with a single floor after the multiplication;
	// flooring the division first would give floor(7/10) * 3 = 0.
	p := Pricing{Price: 3, PaymentDecimals: 2, SaleDecimals: 1}

	got := p.PaymentWithoutFee(NewAmount(7))
	if got.String() != "2" {
		t.Fatalf("expected single truncation after multiplication, got %s", got)
	}
}

func TestPricing_Payment_ReturnsBothAmounts(t *testing.T) {
	p := Pricing{Price: 100, BaseFee: 20, PaymentDecimals: 18, SaleDecimals: 18}

	withoutFee, withFee := p.Payment(Units(100, 18), 0)
	if withoutFee.String() != Units(100, 18).String() {
		t.Errorf("withoutFee = %s, want %s", withoutFee, Units(100, 18))
	}
	if withFee.String() != Units(102, 18).String() {
		t.Errorf("withFee = %s, want %s", withFee, Units(102, 18))
	}
}

func TestPricing_EffectiveFee(t *testing.T) {
	p := Pricing{BaseFee: 25}

	if got := p.EffectiveFee(10); got != 10 {
		t.Errorf("EffectiveFee(10) = %d, want 10", got)
	}
	if got := p.EffectiveFee(0); got != 25 {
		t.Errorf("EffectiveFee(0) = %d, want 25", got)
	}
}
