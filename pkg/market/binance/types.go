package market

// ExchangeInfo is the instrument list trimmed to what validation needs.
type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo describes one tradeable instrument.
type SymbolInfo struct {
	Symbol  string         `json:"symbol"`
	Status  string         `json:"status"`
	Filters []SymbolFilter `json:"filters"`
}

// SymbolFilter is one exchange-published constraint record. Numeric fields
// arrive as strings; they are parsed by the filter cache so the decimal
// representation stays exact.
type SymbolFilter struct {
	FilterType string `json:"filterType"`

	// PRICE_FILTER
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`
	TickSize string `json:"tickSize"`

	// LOT_SIZE
	MinQty   string `json:"minQty"`
	MaxQty   string `json:"maxQty"`
	StepSize string `json:"stepSize"`

	// MIN_NOTIONAL ("notional" on futures, "minNotional" on spot)
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}
