package pricing

import "testing"

func mustCalc(t *testing.T, p Params) Calculator {
	t.Helper()
	c, err := NewCalculator(p)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return c
}

func TestAdvanceFeeAndNet(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	principal := 3000 * OneUSDC
	fee := c.AdvanceFee(principal)
	net := c.NetAdvance(principal)

	if want := 150 * OneUSDC; fee != want {
		t.Fatalf("fee = %d, want %d", fee, want)
	}
	if want := 2850 * OneUSDC; net != want {
		t.Fatalf("net = %d, want %d", net, want)
	}
	if fee+net != principal {
		t.Fatalf("fee %d + net %d != principal %d", fee, net, principal)
	}
}

func TestFeeNetIdentityHoldsForOddAmounts(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	for _, principal := range []uint64{1, 3, 19, 9999, 123_456_789, 1_000_000_000_001} {
		fee := c.AdvanceFee(principal)
		net := c.NetAdvance(principal)
		if fee+net != principal {
			t.Fatalf("principal %d: fee %d + net %d != principal", principal, fee, net)
		}
	}
}

func TestAPRInterest(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	got := c.APRInterest(3000*OneUSDC, 14)
	// 3000 * 0.10 * 14/365 = 11.506849... USDC, truncated.
	if got <= 11*OneUSDC || got >= 12*OneUSDC {
		t.Fatalf("interest = %d, want strictly between %d and %d", got, 11*OneUSDC, 12*OneUSDC)
	}
	if want := uint64(11_506_849); got != want {
		t.Fatalf("interest = %d, want %d", got, want)
	}
}

func TestAPRInterestAtCustomRate(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	def := c.APRInterestAt(3000*OneUSDC, 1000, 14)
	if def != c.APRInterest(3000*OneUSDC, 14) {
		t.Fatal("explicit default rate disagrees with APRInterest")
	}
	lower := c.APRInterestAt(3000*OneUSDC, 800, 14)
	if lower >= def {
		t.Fatalf("800 bps interest %d not below 1000 bps interest %d", lower, def)
	}
}

func TestAPRInterestZeroDays(t *testing.T) {
	c := mustCalc(t, DefaultParams())
	if got := c.APRInterest(3000*OneUSDC, 0); got != 0 {
		t.Fatalf("interest over zero days = %d, want 0", got)
	}
}

func TestFeeSplit(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	total := 100 * OneUSDC
	lp := c.LPFeeShare(total)
	proto := c.ProtocolFeeShare(total)

	if want := 80 * OneUSDC; lp != want {
		t.Fatalf("lp share = %d, want %d", lp, want)
	}
	if want := 20 * OneUSDC; proto != want {
		t.Fatalf("protocol share = %d, want %d", proto, want)
	}
	if lp+proto != total {
		t.Fatalf("lp %d + protocol %d != total %d", lp, proto, total)
	}
}

func TestFeeSplitIdentityOddAmounts(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	// With an 8000/2000 split both shares truncate in the LP's favor by at
	// most one unit; the dust stays with the protocol share computed as the
	// remainder in callers, so here only verify each share independently.
	for _, total := range []uint64{1, 7, 12_345, 999_999_999} {
		lp := c.LPFeeShare(total)
		proto := c.ProtocolFeeShare(total)
		if lp+proto > total {
			t.Fatalf("total %d: shares %d+%d exceed total", total, lp, proto)
		}
	}
}

func TestEffectiveAPRBps(t *testing.T) {
	c := mustCalc(t, DefaultParams())

	if got := c.EffectiveAPRBps(0); got != 1000 {
		t.Fatalf("effective apr for default = %d, want 1000", got)
	}
	if got := c.EffectiveAPRBps(800); got != 800 {
		t.Fatalf("effective apr for override = %d, want 800", got)
	}
}

func TestCooldown(t *testing.T) {
	c := mustCalc(t, DefaultParams())
	if got := c.Params().CooldownSeconds; got != 1_209_600 {
		t.Fatalf("cooldown = %d, want 1209600", got)
	}
	if got := c.CooldownDays(); got != 14 {
		t.Fatalf("cooldown days = %d, want 14", got)
	}
}

func TestNewCalculatorValidation(t *testing.T) {
	bad := DefaultParams()
	bad.LPFeeBps = 9000
	if _, err := NewCalculator(bad); err == nil {
		t.Fatal("expected error for fee split not summing to 10000")
	}

	bad = DefaultParams()
	bad.AdvanceFeeBps = 10_001
	if _, err := NewCalculator(bad); err == nil {
		t.Fatal("expected error for advance fee above 100%")
	}

	bad = DefaultParams()
	bad.CooldownSeconds = 0
	if _, err := NewCalculator(bad); err == nil {
		t.Fatal("expected error for zero cooldown")
	}
}
