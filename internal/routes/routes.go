// Package routes holds the broker's static REST route table.
package routes

// Default endpoints of the Shoonya (Noren) production environment.
const (
	DefaultBaseURL   = "https://api.shoonya.com/NorenWClientTP"
	DefaultSocketURL = "wss://api.shoonya.com/NorenWSTP/"
)

// Route names used by the client.
const (
	Login         = "auth.login"
	Orders        = "orders"
	OrderHistory  = "orders.history"
	PlaceOrder    = "orders.place"
	ModifyOrder   = "orders.modify"
	CancelOrder   = "orders.cancel"
	PositionsBook = "positions.book"
	Quote         = "market.quote"
	Search        = "market.search"
	TimeSeries    = "market.series"
)

var table = map[string]string{
	Login:         "/QuickAuth",
	Orders:        "/OrderBook",
	OrderHistory:  "/SingleOrdHist",
	PlaceOrder:    "/PlaceOrder",
	ModifyOrder:   "/ModifyOrder",
	CancelOrder:   "/CancelOrder",
	PositionsBook: "/PositionBook",
	Quote:         "/GetQuotes",
	Search:        "/SearchScrip",
	TimeSeries:    "/TPSeries",
}

// Path returns the URL path for a route name.
func Path(route string) (string, bool) {
	p, ok := table[route]
	return p, ok
}
