package api

// API response types. Raw integer fields carry on-chain units; the
// *Decimal fields render them with the asset's precision.

// PairInfo describes the trading pair
type PairInfo struct {
	ID            uint64 `json:"id"`
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	BaseDecimals  uint8  `json:"baseDecimals"`
	QuoteDecimals uint8  `json:"quoteDecimals"`
	Authority     string `json:"authority"`
}

// LevelInfo summarizes one price level
type LevelInfo struct {
	Price          uint64 `json:"price"`
	PriceDecimal   string `json:"priceDecimal"`
	Orders         int    `json:"orders"`
	Deposit        string `json:"deposit"`
	DepositDecimal string `json:"depositDecimal"`
}

// BookSide is the depth of one side, best price first
type BookSide struct {
	Side   string      `json:"side"`
	Levels []LevelInfo `json:"levels"`
}

// PricesResponse lists active prices of one side, best first
type PricesResponse struct {
	Side   string   `json:"side"`
	Prices []uint64 `json:"prices"`
}

// OrderInfo is a resting order
type OrderInfo struct {
	ID             uint64 `json:"id"`
	Side           string `json:"side"`
	Owner          string `json:"owner"`
	Price          uint64 `json:"price"`
	PriceDecimal   string `json:"priceDecimal"`
	Deposit        string `json:"deposit"`
	DepositDecimal string `json:"depositDecimal"`
	Required       string `json:"required"`
	Queued         bool   `json:"queued"`
}

// MarketInfo is the pair's current pricing
type MarketInfo struct {
	BestBid         uint64 `json:"bestBid"`
	BestAsk         uint64 `json:"bestAsk"`
	LastTradedPrice uint64 `json:"lastTradedPrice"`
	MarketPrice     uint64 `json:"marketPrice"`
	// MarketPriceDecimal is empty when the book has no price at all
	MarketPriceDecimal string `json:"marketPriceDecimal"`
}

// ConvertResponse is the result of a conversion at an explicit price
type ConvertResponse struct {
	Price         uint64 `json:"price"`
	Amount        string `json:"amount"`
	Toward        string `json:"toward"`
	Result        string `json:"result"`
	ResultDecimal string `json:"resultDecimal"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
