package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"order-gateway/pkg/exchanges/common"
)

// StreamClient manages streaming from the futures public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "fstream.binance.com"
	if testnet {
		host = "stream.binancefuture.com"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeMarkPrice listens to the 1s mark price stream for a symbol and
// pushes parsed ticks into a channel. Returns the channel and a stop func.
func (c *StreamClient) SubscribeMarkPrice(ctx context.Context, symbol string) (<-chan common.PriceTick, func(), error) {
	stream := fmt.Sprintf("%s@markPrice@1s", strings.ToLower(symbol))
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial mark price ws: %w", err)
	}

	out := make(chan common.PriceTick, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("[MARKET] mark price ws read error: %v", err)
				return
			}

			tick, err := parseMarkPriceMessage(msg)
			if err != nil {
				log.Printf("[MARKET] mark price parse error: %v", err)
				continue
			}
			// Drop rather than block when the consumer falls behind.
			select {
			case out <- tick:
			default:
			}
		}
	}()

	return out, stop, nil
}

func parseMarkPriceMessage(msg []byte) (common.PriceTick, error) {
	// The "e" event-type field must be declared explicitly: without it the
	// decoder matches "e" case-insensitively against EventTime and rejects
	// every message.
	var raw struct {
		EventType string `json:"e"`
		EventTime int64  `json:"E"`
		Symbol    string `json:"s"`
		MarkPrice string `json:"p"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return common.PriceTick{}, err
	}
	price, err := strconv.ParseFloat(raw.MarkPrice, 64)
	if err != nil {
		return common.PriceTick{}, fmt.Errorf("parse mark price %q: %w", raw.MarkPrice, err)
	}
	return common.PriceTick{
		Symbol: raw.Symbol,
		Price:  price,
		Time:   raw.EventTime,
	}, nil
}
