package memory

import (
	"testing"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/holiman/uint256"
)

func BenchmarkPriceIndex_Insert(b *testing.B) {
	pi := NewPriceIndex()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Use different prices to test the sorting performance
		pi.Insert(core.Bid, uint64(100+(i%100)))
	}
}

func BenchmarkOrderStore_CreateAndAppend(b *testing.B) {
	s := NewOrderStore()
	amount := uint256.NewInt(10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		price := uint64(100 + (i % 100))
		id := s.CreateOrder(core.Ask, alice, price, amount)
		s.Append(core.Ask, price, id)
	}
}

func BenchmarkOrderStore_PopAndSettle(b *testing.B) {
	s := NewOrderStore()
	amount := uint256.NewInt(10)
	quote := func(o *core.Order) *uint256.Int { return o.Deposit }
	available := uint256.NewInt(10)
	zero := new(uint256.Int)

	for i := 0; i < b.N; i++ {
		id := s.CreateOrder(core.Ask, alice, 100, amount)
		s.Append(core.Ask, 100, id)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id, _, _, _ := s.PopHeadIfFillable(core.Ask, 100, available, quote)
		_, _, _ = s.Decrease(core.Ask, id, zero, zero, true)
	}
}
