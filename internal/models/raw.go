package models

// RawTrade is one tradebook row as delivered by a trade source, before any coercion.
// Column tags follow the Zerodha Console tradebook export.
type RawTrade struct {
	Symbol             string `csv:"symbol"`
	ISIN               string `csv:"isin"`
	TradeDate          string `csv:"trade_date"`
	Exchange           string `csv:"exchange"`
	Segment            string `csv:"segment"`
	Series             string `csv:"series"`
	TradeType          string `csv:"trade_type"`
	Auction            string `csv:"auction"`
	Quantity           string `csv:"quantity"`
	Price              string `csv:"price"`
	TradeID            string `csv:"trade_id"`
	OrderID            string `csv:"order_id"`
	OrderExecutionTime string `csv:"order_execution_time"`
	ExpiryDate         string `csv:"expiry_date"`

	Row int `csv:"-"` // 1-based position in the source
}
