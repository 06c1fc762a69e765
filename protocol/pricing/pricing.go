package pricing

import (
	"fmt"
)

const (
	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10_000

	// DaysPerYear used for APR interest accrual.
	DaysPerYear = 365

	// OneUSDC is one USDC in raw 6-decimal units.
	OneUSDC uint64 = 1_000_000
)

// Params are the protocol pricing parameters. They are passed explicitly so
// tests and deployments can vary them; there are no package-level knobs.
type Params struct {
	AdvanceFeeBps   uint64
	APRBps          uint64
	LPFeeBps        uint64
	ProtocolFeeBps  uint64
	CooldownSeconds uint64
}

// DefaultParams returns the reference protocol parameters: 5% advance fee,
// 10% APR, 80/20 LP/protocol fee split, 14 day cooldown.
func DefaultParams() Params {
	return Params{
		AdvanceFeeBps:   500,
		APRBps:          1000,
		LPFeeBps:        8000,
		ProtocolFeeBps:  2000,
		CooldownSeconds: 14 * 24 * 60 * 60,
	}
}

// Calculator evaluates the pricing arithmetic for a fixed set of Params.
// All amounts are raw integer units and every division truncates toward
// zero; the truncation is part of the protocol contract.
type Calculator struct {
	params Params
}

func NewCalculator(p Params) (Calculator, error) {
	if p.AdvanceFeeBps > BpsDenominator {
		return Calculator{}, fmt.Errorf("advance fee %d bps exceeds %d", p.AdvanceFeeBps, BpsDenominator)
	}
	if p.LPFeeBps+p.ProtocolFeeBps != BpsDenominator {
		return Calculator{}, fmt.Errorf("fee split %d/%d bps must sum to %d", p.LPFeeBps, p.ProtocolFeeBps, BpsDenominator)
	}
	if p.CooldownSeconds == 0 {
		return Calculator{}, fmt.Errorf("cooldown must be positive")
	}
	return Calculator{params: p}, nil
}

func (c Calculator) Params() Params {
	return c.params
}

// AdvanceFee is the fee charged on an advance of the given principal.
func (c Calculator) AdvanceFee(principal uint64) uint64 {
	return principal * c.params.AdvanceFeeBps / BpsDenominator
}

// NetAdvance is the amount paid out to the user after the advance fee.
func (c Calculator) NetAdvance(principal uint64) uint64 {
	return principal - c.AdvanceFee(principal)
}

// APRInterest accrues simple interest on principal over the given number of
// whole days at the configured annualized rate.
func (c Calculator) APRInterest(principal, days uint64) uint64 {
	return c.APRInterestAt(principal, c.params.APRBps, days)
}

// APRInterestAt accrues interest at an explicit APR, for offers that carry
// their own rate.
func (c Calculator) APRInterestAt(principal, aprBps, days uint64) uint64 {
	return principal * aprBps * days / (BpsDenominator * DaysPerYear)
}

// EffectiveAPRBps resolves an offer's APR override; zero means the protocol
// default applies.
func (c Calculator) EffectiveAPRBps(customBps uint64) uint64 {
	if customBps == 0 {
		return c.params.APRBps
	}
	return customBps
}

// LPFeeShare is the LP's portion of a collected advance fee.
func (c Calculator) LPFeeShare(totalFee uint64) uint64 {
	return totalFee * c.params.LPFeeBps / BpsDenominator
}

// ProtocolFeeShare is the protocol's portion of a collected advance fee.
func (c Calculator) ProtocolFeeShare(totalFee uint64) uint64 {
	return totalFee * c.params.ProtocolFeeBps / BpsDenominator
}

// CooldownDays is the configured cooldown rounded down to whole days.
func (c Calculator) CooldownDays() uint64 {
	return c.params.CooldownSeconds / (24 * 60 * 60)
}

// USDCToRaw converts a display-unit USDC amount to raw 6-decimal units.
func USDCToRaw(display uint64) uint64 {
	return display * OneUSDC
}

// RawToUSDC converts raw units to whole display USDC, truncating.
func RawToUSDC(raw uint64) uint64 {
	return raw / OneUSDC
}
