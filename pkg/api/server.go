// Package api serves read-only market data for one pair over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"time"

	"github.com/erain9/pairbook/pkg/core"
	"github.com/erain9/pairbook/pkg/logging"
	"github.com/erain9/pairbook/pkg/otel"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultLimit caps list endpoints when no limit is given
const DefaultLimit = 100

// Book is the read side of core.OrderBook
type Book interface {
	Pair() *core.Pair
	BestPrice(side core.Side) uint64
	Prices(side core.Side, n int) iter.Seq[uint64]
	PricesRange(side core.Side, start, end uint64) iter.Seq[uint64]
	Orders(side core.Side, price uint64, n int) iter.Seq[*core.Order]
	Order(side core.Side, id core.OrderID) (*core.Order, error)
	Depth(side core.Side, n int) []core.Level
	RequiredAmount(side core.Side, id core.OrderID) (*uint256.Int, error)
	Convert(price uint64, amount *uint256.Int, towardQuote bool) (*uint256.Int, error)
	LastTradedPrice() uint64
	MarketPrice() (uint64, error)
}

// Server handles the market-data REST API
type Server struct {
	book           Book
	router         *mux.Router
	metrics        *otel.HTTPServerMetrics
	allowedOrigins []string
}

// Option configures a Server
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. The default allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMetrics records request metrics
func WithMetrics(metrics *otel.HTTPServerMetrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// NewServer creates a new API server
func NewServer(book Book, opts ...Option) *Server {
	s := &Server{
		book:           book,
		router:         mux.NewRouter(),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.instrument)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/pair", s.handleGetPair).Methods("GET")
	api.HandleFunc("/book/{side}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/book/{side}/prices", s.handleGetPrices).Methods("GET")
	api.HandleFunc("/book/{side}/{price:[0-9]+}/orders", s.handleGetLevelOrders).Methods("GET")
	api.HandleFunc("/orders/{side}/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/market", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/convert", s.handleConvert).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS and request logging
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", logging.RequestIDHeader},
	})
	return logging.Middleware(c.Handler(s.router))
}

// NewHTTPServer returns an http.Server serving the API on addr
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// instrument traces each request and records its metrics under the route
// template
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		ctx, span := otel.StartOrderSpan(r.Context(), otel.SpanMarketRequest,
			attribute.String(otel.AttributeRoute, route))
		defer span.End()

		s.metrics.AddInFlightRequests(ctx, 1)
		defer s.metrics.AddInFlightRequests(ctx, -1)

		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.metrics.RecordRequest(ctx, route, rec.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pair(w)
	if !ok {
		return
	}

	respondJSON(w, PairInfo{
		ID:            pair.ID,
		Base:          pair.Base.Hex(),
		Quote:         pair.Quote.Hex(),
		BaseDecimals:  pair.BaseDecimals,
		QuoteDecimals: pair.QuoteDecimals,
		Authority:     pair.Authority.Hex(),
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pair(w)
	if !ok {
		return
	}
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	limit, ok := uintQuery(w, r, "limit", DefaultLimit)
	if !ok {
		return
	}

	decimals := depositDecimals(pair, side)
	levels := make([]LevelInfo, 0)
	for _, level := range s.book.Depth(side, int(limit)) {
		levels = append(levels, LevelInfo{
			Price:          level.Price,
			PriceDecimal:   formatPrice(level.Price),
			Orders:         level.Orders,
			Deposit:        level.Deposit.Dec(),
			DepositDecimal: formatAmount(level.Deposit, decimals),
		})
	}

	respondJSON(w, BookSide{Side: side.String(), Levels: levels})
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	limit, ok := uintQuery(w, r, "limit", DefaultLimit)
	if !ok {
		return
	}
	start, ok := uintQuery(w, r, "start", 0)
	if !ok {
		return
	}
	end, ok := uintQuery(w, r, "end", 0)
	if !ok {
		return
	}

	seq := s.book.Prices(side, 0)
	if start != 0 || end != 0 {
		if end == 0 {
			end = ^uint64(0)
		}
		seq = s.book.PricesRange(side, start, end)
	}

	prices := make([]uint64, 0)
	for price := range seq {
		if uint64(len(prices)) >= limit {
			break
		}
		prices = append(prices, price)
	}

	respondJSON(w, PricesResponse{Side: side.String(), Prices: prices})
}

func (s *Server) handleGetLevelOrders(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pair(w)
	if !ok {
		return
	}
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	price, err := strconv.ParseUint(mux.Vars(r)["price"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	limit, ok := uintQuery(w, r, "limit", DefaultLimit)
	if !ok {
		return
	}

	orders := make([]OrderInfo, 0)
	for order := range s.book.Orders(side, price, int(limit)) {
		orders = append(orders, orderInfo(pair, order))
	}
	respondJSON(w, orders)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pair(w)
	if !ok {
		return
	}
	side, ok := sideParam(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	order, err := s.book.Order(side, core.OrderID(id))
	if err != nil {
		respondBookError(w, err)
		return
	}
	respondJSON(w, orderInfo(pair, order))
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	info := MarketInfo{
		BestBid:         s.book.BestPrice(core.Bid),
		BestAsk:         s.book.BestPrice(core.Ask),
		LastTradedPrice: s.book.LastTradedPrice(),
	}

	price, err := s.book.MarketPrice()
	switch {
	case err == nil:
		info.MarketPrice = price
		info.MarketPriceDecimal = formatPrice(price)
	case !errors.Is(err, core.ErrNoMarketPrice):
		respondBookError(w, err)
		return
	}

	respondJSON(w, info)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.pair(w)
	if !ok {
		return
	}

	query := r.URL.Query()
	price, err := strconv.ParseUint(query.Get("price"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	amount, err := uint256.FromDecimal(query.Get("amount"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}

	toward := query.Get("toward")
	var towardQuote bool
	var decimals uint8
	switch toward {
	case "quote":
		towardQuote, decimals = true, pair.QuoteDecimals
	case "base":
		towardQuote, decimals = false, pair.BaseDecimals
	default:
		respondError(w, http.StatusBadRequest, "invalid toward", `expected "quote" or "base"`)
		return
	}

	result, err := s.book.Convert(price, amount, towardQuote)
	if err != nil {
		respondBookError(w, err)
		return
	}

	respondJSON(w, ConvertResponse{
		Price:         price,
		Amount:        amount.Dec(),
		Toward:        toward,
		Result:        result.Dec(),
		ResultDecimal: formatAmount(result, decimals),
	})
}

// ==============================
// Helpers
// ==============================

func (s *Server) pair(w http.ResponseWriter) (*core.Pair, bool) {
	pair := s.book.Pair()
	if pair == nil {
		respondError(w, http.StatusServiceUnavailable, "pair not initialized", "")
		return nil, false
	}
	return pair, true
}

func orderInfo(pair *core.Pair, order *core.Order) OrderInfo {
	return OrderInfo{
		ID:             uint64(order.ID),
		Side:           order.Side.String(),
		Owner:          order.Owner.Hex(),
		Price:          order.Price,
		PriceDecimal:   formatPrice(order.Price),
		Deposit:        order.Deposit.Dec(),
		DepositDecimal: formatAmount(order.Deposit, depositDecimals(pair, order.Side)),
		Required:       pair.Required(order.Side, order.Price, order.Deposit).Dec(),
		Queued:         order.Queued,
	}
}

func sideParam(w http.ResponseWriter, r *http.Request) (core.Side, bool) {
	side, err := core.ParseSide(mux.Vars(r)["side"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return side, false
	}
	return side, true
}

func uintQuery(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name, err.Error())
		return 0, false
	}
	return v, true
}

func respondBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNonexistentOrder), errors.Is(err, core.ErrNoMarketPrice):
		respondError(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, core.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, "pair not initialized", err.Error())
	case errors.Is(err, core.ErrPriceIsZero), errors.Is(err, core.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, title string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   title,
		Message: message,
	})
}
