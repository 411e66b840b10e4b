package memory

import "github.com/erain9/pairbook/pkg/core"

// State is a point-in-time copy of a PriceIndex and OrderStore pair, in a
// form that encodes to JSON.
type State struct {
	Bids            *PriceChain `json:"bids"`
	Asks            *PriceChain `json:"asks"`
	LastTradedPrice uint64      `json:"lastTradedPrice"`
	BidOrders       *SideTable  `json:"bidOrders"`
	AskOrders       *SideTable  `json:"askOrders"`
}

// Snapshot copies the index and store. The two are locked one after the
// other, so callers must not mutate the book concurrently.
func Snapshot(index *PriceIndex, store *OrderStore) *State {
	state := &State{}

	index.RLock()
	state.Bids = index.sides[core.Bid].clone()
	state.Asks = index.sides[core.Ask].clone()
	state.LastTradedPrice = index.lastTradedPrice
	index.RUnlock()

	store.RLock()
	state.BidOrders = store.sides[core.Bid].clone()
	state.AskOrders = store.sides[core.Ask].clone()
	store.RUnlock()

	return state
}

// Restore replaces the contents of index and store with state
func Restore(state *State, index *PriceIndex, store *OrderStore) {
	index.Lock()
	index.sides[core.Bid] = chainOrEmpty(state.Bids)
	index.sides[core.Ask] = chainOrEmpty(state.Asks)
	index.lastTradedPrice = state.LastTradedPrice
	index.Unlock()

	store.Lock()
	store.sides[core.Bid] = tableOrEmpty(state.BidOrders)
	store.sides[core.Ask] = tableOrEmpty(state.AskOrders)
	store.Unlock()
}

func chainOrEmpty(c *PriceChain) *PriceChain {
	if c == nil {
		return newPriceChain()
	}
	return c.clone()
}

func tableOrEmpty(t *SideTable) *SideTable {
	if t == nil {
		return newSideTable()
	}
	return t.clone()
}
