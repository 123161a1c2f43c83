package dhan

// Exchange segment and order constants for the NSE derivatives segment.
const (
	segmentFNO      = "NSE_FNO"
	productIntraday = "INTRADAY"
	orderTypeMarket = "MARKET"
	validityDay     = "DAY"
)

type orderRequest struct {
	DhanClientID    string `json:"dhanClientId"`
	CorrelationID   string `json:"correlationId,omitempty"`
	TransactionType string `json:"transactionType"`
	ExchangeSegment string `json:"exchangeSegment"`
	ProductType     string `json:"productType"`
	OrderType       string `json:"orderType"`
	SecurityID      string `json:"securityId"`
	Quantity        int    `json:"quantity"`
	Validity        string `json:"validity"`
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

type orderDetail struct {
	OrderID       string  `json:"orderId"`
	OrderStatus   string  `json:"orderStatus"`
	Quantity      int     `json:"quantity"`
	FilledQty     int     `json:"filledQty"`
	AveragePrice  float64 `json:"averageTradedPrice"`
	UpdateTime    string  `json:"updateTime"`
	OmsErrorDescr string  `json:"omsErrorDescription"`
}

type positionEntry struct {
	SecurityID      string `json:"securityId"`
	ExchangeSegment string `json:"exchangeSegment"`
	NetQty          int    `json:"netQty"`
}

type marginRequest struct {
	DhanClientID    string  `json:"dhanClientId"`
	ExchangeSegment string  `json:"exchangeSegment"`
	TransactionType string  `json:"transactionType"`
	Quantity        int     `json:"quantity"`
	ProductType     string  `json:"productType"`
	SecurityID      string  `json:"securityId"`
	Price           float64 `json:"price"`
}

type marginResponse struct {
	TotalMargin         float64 `json:"totalMargin"`
	AvailableBalance    float64 `json:"availableBalance"`
	InsufficientBalance float64 `json:"insufficientBalance"`
}

type quoteRequest map[string][]string

type quoteResponse struct {
	Data map[string]map[string]quoteEntry `json:"data"`
}

type quoteEntry struct {
	Depth quoteDepth `json:"depth"`
}

type quoteDepth struct {
	Buy  []depthLevel `json:"buy"`
	Sell []depthLevel `json:"sell"`
}

type depthLevel struct {
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}
