package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"order-gateway/internal/bracket"
	"order-gateway/internal/events"
	"order-gateway/internal/filters"
	"order-gateway/internal/monitor"
	"order-gateway/internal/volatility"
	"order-gateway/pkg/exchanges/binance/futures"
	"order-gateway/pkg/exchanges/common"
)

// OrderService places bracket orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req bracket.Request) (*bracket.Result, error)
}

// FilterService resolves instrument constraints and validates orders.
type FilterService interface {
	FiltersFor(ctx context.Context, symbol string) (filters.InstrumentFilters, error)
}

// OrderValidator checks order parameters against instrument constraints.
type OrderValidator interface {
	Validate(ctx context.Context, symbol string, quantity, price float64) error
}

// VolService computes ATR and protective price pairs.
type VolService interface {
	ATR(ctx context.Context, symbol, interval string, period int) (float64, error)
	DynamicStops(ctx context.Context, symbol string, side common.Side, entryPrice float64) volatility.Stops
}

// AccountService returns the signed account snapshot.
type AccountService interface {
	Account(ctx context.Context) (*futures.AccountSnapshot, error)
}

// CandleService returns historical candles.
type CandleService interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error)
}

// TickerService returns the last traded price from the exchange.
type TickerService interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceCache returns the last streamed price, if any.
type PriceCache interface {
	LastPrice(symbol string) (float64, bool)
}

// Server wires HTTP endpoints around the execution pipeline.
type Server struct {
	Router    *gin.Engine
	Orders    OrderService
	Filters   FilterService
	Validator OrderValidator
	Vol       VolService
	Accounts  AccountService
	Candles   CandleService
	Ticker    TickerService
	Prices    PriceCache
	Clock     *common.TimeSync
	Bus       *events.Bus
	Metrics   *monitor.Metrics

	JWTSecret    string
	apiUser      string
	passwordHash []byte
}

// Deps collects the server's collaborators.
type Deps struct {
	Orders    OrderService
	Filters   FilterService
	Validator OrderValidator
	Vol       VolService
	Accounts  AccountService
	Candles   CandleService
	Ticker    TickerService
	Prices    PriceCache
	Clock     *common.TimeSync
	Bus       *events.Bus
	Metrics   *monitor.Metrics
	JWTSecret string
	APIUser   string
	// APIPassword is hashed at construction; an empty password disables
	// the login endpoint and all protected routes.
	APIPassword string
}

// NewServer builds the gin router with the full middleware stack.
func NewServer(d Deps) (*Server, error) {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(d.Metrics))
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Orders:    d.Orders,
		Filters:   d.Filters,
		Validator: d.Validator,
		Vol:       d.Vol,
		Accounts:  d.Accounts,
		Candles:   d.Candles,
		Ticker:    d.Ticker,
		Prices:    d.Prices,
		Clock:     d.Clock,
		Bus:       d.Bus,
		Metrics:   d.Metrics,
		JWTSecret: d.JWTSecret,
		apiUser:   d.APIUser,
	}
	if d.APIPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(d.APIPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		s.passwordHash = hash
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/time", s.getTime)
		api.GET("/metrics", s.getMetrics)
		api.GET("/filters/:symbol", s.getFilters)
		api.GET("/price/:symbol", s.getPrice)
		api.GET("/klines", s.getKlines)
		api.GET("/atr", s.getATR)
		api.POST("/validate", s.postValidate)
		api.POST("/stops", s.postStops)

		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/account", s.getAccount)
			protected.POST("/orders", s.placeOrder)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"synced": s.Clock != nil && s.Clock.Synced(),
	})
}

// Start runs the HTTP server; blocks until it exits.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
