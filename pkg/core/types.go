package core

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side represents bid or ask side of the book
type Side int

// Book sides
const (
	Ask Side = iota
	Bid
)

// String returns side as string
func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}

// IsBid reports whether the side is the bid side
func (s Side) IsBid() bool {
	return s == Bid
}

// Opposite returns the other side of the book
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// SideOf maps the isBid flag used by the crossing authority to a Side
func SideOf(isBid bool) Side {
	if isBid {
		return Bid
	}
	return Ask
}

// ParseSide parses "bid"/"ask" (case-insensitive upper or lower)
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid", "BID", "bids", "buy", "BUY":
		return Bid, nil
	case "ask", "ASK", "asks", "sell", "SELL":
		return Ask, nil
	}
	return Ask, fmt.Errorf("%w: unknown side %q", ErrInvalidArgument, s)
}

// MaxDecimals is the highest native precision an asset may have
const MaxDecimals = 18

// Asset describes one leg of a trading pair
type Asset struct {
	Address  common.Address
	Decimals uint8
}

// Pair is the immutable configuration of a trading pair. It is set once by
// OrderBook.Initialize.
type Pair struct {
	ID        uint64
	Base      common.Address
	Quote     common.Address
	Authority common.Address

	BaseDecimals  uint8
	QuoteDecimals uint8

	// DecimalScale is 10^|base decimals - quote decimals|
	DecimalScale        *uint256.Int
	BaseHasMoreDecimals bool
}

// NewPair validates asset precision and derives the decimal scale
func NewPair(id uint64, base, quote Asset, authority common.Address) (*Pair, error) {
	if base.Decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: base has %d decimals", ErrInvalidDecimals, base.Decimals)
	}
	if quote.Decimals > MaxDecimals {
		return nil, fmt.Errorf("%w: quote has %d decimals", ErrInvalidDecimals, quote.Decimals)
	}

	baseMore := base.Decimals > quote.Decimals
	diff := quote.Decimals - base.Decimals
	if baseMore {
		diff = base.Decimals - quote.Decimals
	}

	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(diff)))

	return &Pair{
		ID:                  id,
		Base:                base.Address,
		Quote:               quote.Address,
		Authority:           authority,
		BaseDecimals:        base.Decimals,
		QuoteDecimals:       quote.Decimals,
		DecimalScale:        scale,
		BaseHasMoreDecimals: baseMore,
	}, nil
}

// DepositAsset returns the asset an order on side deposits
func (p *Pair) DepositAsset(side Side) common.Address {
	if side == Bid {
		return p.Quote
	}
	return p.Base
}

// CounterAsset returns the asset an order on side receives when filled
func (p *Pair) CounterAsset(side Side) common.Address {
	if side == Bid {
		return p.Base
	}
	return p.Quote
}

// MarshalJSON implements json.Marshaler
func (p *Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID                  uint64 `json:"id"`
		Base                string `json:"base"`
		Quote               string `json:"quote"`
		Authority           string `json:"authority"`
		BaseDecimals        uint8  `json:"baseDecimals"`
		QuoteDecimals       uint8  `json:"quoteDecimals"`
		DecimalScale        string `json:"decimalScale"`
		BaseHasMoreDecimals bool   `json:"baseHasMoreDecimals"`
	}{
		ID:                  p.ID,
		Base:                p.Base.Hex(),
		Quote:               p.Quote.Hex(),
		Authority:           p.Authority.Hex(),
		BaseDecimals:        p.BaseDecimals,
		QuoteDecimals:       p.QuoteDecimals,
		DecimalScale:        p.DecimalScale.Dec(),
		BaseHasMoreDecimals: p.BaseHasMoreDecimals,
	})
}

// Level summarizes one price level for market-data consumers
type Level struct {
	Price   uint64
	Orders  int
	Deposit *uint256.Int
}
