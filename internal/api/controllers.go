package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"order-gateway/internal/bracket"
	"order-gateway/pkg/exchanges/common"
)

func (s *Server) getTime(c *gin.Context) {
	resp := gin.H{
		"localTime": time.Now().UnixMilli(),
	}
	if s.Clock != nil {
		resp["serverTime"] = s.Clock.Now()
		resp["offsetMs"] = s.Clock.Offset()
		resp["synced"] = s.Clock.Synced()
		if last := s.Clock.LastSync(); !last.IsZero() {
			resp["lastSync"] = last.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.Metrics.Snapshot())
}

func (s *Server) getFilters(c *gin.Context) {
	symbol := c.Param("symbol")
	f, err := s.Filters.FiltersFor(c.Request.Context(), symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (s *Server) getPrice(c *gin.Context) {
	symbol := c.Param("symbol")

	if s.Prices != nil {
		if price, ok := s.Prices.LastPrice(symbol); ok {
			c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price, "source": "stream"})
			return
		}
	}

	price, err := s.Ticker.TickerPrice(c.Request.Context(), symbol)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price, "source": "rest"})
}

func (s *Server) getKlines(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", "1h")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1500 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "limit must be 1-1500"})
		return
	}

	candles, err := s.Candles.Klines(c.Request.Context(), symbol, interval, limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "candles": candles})
}

func (s *Server) getATR(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", "1h")
	period, err := strconv.Atoi(c.DefaultQuery("period", "14"))
	if err != nil || period <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "period must be positive"})
		return
	}

	atr, err := s.Vol.ATR(c.Request.Context(), symbol, interval, period)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "interval": interval, "period": period, "atr": atr})
}

func (s *Server) postValidate(c *gin.Context) {
	var req struct {
		Symbol   string  `json:"symbol" binding:"required"`
		Quantity float64 `json:"quantity" binding:"required,gt=0"`
		Price    float64 `json:"price"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	if err := s.Validator.Validate(c.Request.Context(), req.Symbol, req.Quantity, req.Price); err != nil {
		if common.KindOf(err) == common.KindValidation {
			c.JSON(http.StatusOK, gin.H{"valid": false, "reason": err.Error()})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

func (s *Server) postStops(c *gin.Context) {
	var req struct {
		Symbol     string      `json:"symbol" binding:"required"`
		Side       common.Side `json:"side" binding:"required"`
		EntryPrice float64     `json:"entryPrice" binding:"required,gt=0"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}
	if !req.Side.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION", "error": "side must be BUY or SELL"})
		return
	}

	stops := s.Vol.DynamicStops(c.Request.Context(), req.Symbol, req.Side, req.EntryPrice)
	c.JSON(http.StatusOK, stops)
}

func (s *Server) getAccount(c *gin.Context) {
	snapshot, err := s.Accounts.Account(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) placeOrder(c *gin.Context) {
	var req bracket.Request
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_PAYLOAD", "error": "invalid request payload"})
		return
	}

	res, err := s.Orders.PlaceOrder(c.Request.Context(), req)

	if s.Metrics != nil && res != nil {
		s.Metrics.IncrementOrders()
		if res.StopLoss != nil && !res.StopLoss.Placed {
			s.Metrics.IncrementLegFailures()
		}
		if res.TakeProfit != nil && !res.TakeProfit.Placed {
			s.Metrics.IncrementLegFailures()
		}
	}

	if err != nil {
		// A result alongside an error means the entry filled but the
		// bracket could not be completed; the caller must see both.
		if res != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"code":   string(common.KindOf(err)),
				"error":  err.Error(),
				"result": res,
			})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch common.KindOf(err) {
	case common.KindValidation:
		status = http.StatusBadRequest
	case common.KindInsufficientData:
		status = http.StatusUnprocessableEntity
	case common.KindTransient:
		status = http.StatusServiceUnavailable
	case common.KindSignature, common.KindRejection:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"code": string(common.KindOf(err)), "error": err.Error()})
}
