package core

import "github.com/holiman/uint256"

// Convert converts amount between the pair's assets at price. With
// towardQuote set, amount is in base units and the result in quote units;
// otherwise the reverse. Integer division truncates, so a round trip may lose
// up to one unit of the coarser asset.
func (p *Pair) Convert(price uint64, amount *uint256.Int, towardQuote bool) *uint256.Int {
	out := new(uint256.Int)
	if price == NoPrice || amount == nil {
		return out
	}
	pr := uint256.NewInt(price)

	if towardQuote {
		out.Mul(amount, pr)
		out.Div(out, PricePrecision)
		if p.BaseHasMoreDecimals {
			return out.Div(out, p.DecimalScale)
		}
		return out.Mul(out, p.DecimalScale)
	}

	out.Mul(amount, PricePrecision)
	out.Div(out, pr)
	if p.BaseHasMoreDecimals {
		return out.Mul(out, p.DecimalScale)
	}
	return out.Div(out, p.DecimalScale)
}

// Dust is the deposited-asset value of one raw unit of the counter asset for
// an order resting on side at price. A remainder below it can no longer be
// paid for with a whole counter-asset unit.
func (p *Pair) Dust(side Side, price uint64) *uint256.Int {
	return p.Convert(price, uint256.NewInt(1), side == Bid)
}

// Required is the counter-asset amount that fully consumes deposit on side
func (p *Pair) Required(side Side, price uint64, deposit *uint256.Int) *uint256.Int {
	return p.Convert(price, deposit, side != Bid)
}

// ToDeposit converts a counter-asset amount into the deposited asset of side
func (p *Pair) ToDeposit(side Side, price uint64, counter *uint256.Int) *uint256.Int {
	return p.Convert(price, counter, side == Bid)
}
