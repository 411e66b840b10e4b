package core

import "iter"

// PriceChain is the traversal half of a PriceLevelIndex
type PriceChain interface {
	Head(side Side) uint64
	Next(side Side, price uint64) uint64
}

// PricesFrom yields up to n prices of side in traversal order, best first.
// n <= 0 yields every price. The sequence reads the chain each time it is
// ranged over and never mutates it.
func PricesFrom(chain PriceChain, side Side, n int) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		count := 0
		for price := chain.Head(side); price != NoPrice; price = chain.Next(side, price) {
			if n > 0 && count >= n {
				return
			}
			if !yield(price) {
				return
			}
			count++
		}
	}
}

// PricesRange yields the prices of side that lie between start and end
// inclusive, in traversal order. The bounds may be given in either order.
func PricesRange(chain PriceChain, side Side, start, end uint64) iter.Seq[uint64] {
	lo, hi := start, end
	if lo > hi {
		lo, hi = hi, lo
	}

	return func(yield func(uint64) bool) {
		for price := chain.Head(side); price != NoPrice; price = chain.Next(side, price) {
			if price < lo {
				if side == Bid {
					return
				}
				continue
			}
			if price > hi {
				if side == Ask {
					return
				}
				continue
			}
			if !yield(price) {
				return
			}
		}
	}
}
