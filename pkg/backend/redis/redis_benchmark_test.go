package redis

import (
	"testing"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

func BenchmarkPriceIndex_Insert(b *testing.B) {
	client, prefix := setupTestRedis(b)
	pi := NewPriceIndex(client, prefix, zap.NewNop())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pi.Insert(core.Ask, uint64(10000+i))
	}
}

func BenchmarkOrderStore_CreateAndAppend(b *testing.B) {
	client, prefix := setupTestRedis(b)
	s := NewOrderStore(client, prefix, zap.NewNop())
	amount := uint256.NewInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := s.CreateOrder(core.Bid, owner, 100, amount)
		s.Append(core.Bid, 100, id)
	}
}
