package routes

import "testing"

func TestPath(t *testing.T) {
	for _, route := range []string{Login, Orders, OrderHistory, PlaceOrder, ModifyOrder, CancelOrder, PositionsBook, Quote, Search, TimeSeries} {
		p, ok := Path(route)
		if !ok || p == "" || p[0] != '/' {
			t.Errorf("Path(%q) = (%q, %v), want a rooted path", route, p, ok)
		}
	}
	if _, ok := Path("orders.unknown"); ok {
		t.Error("Path should not resolve unknown routes")
	}
}
