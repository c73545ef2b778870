package order

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc  string
		order Order
		field string
	}{
		{"valid limit", Order{MarketID: "m1", Side: SideBuy, Type: TypeLimit, Size: 10, Price: PriceOf(0.5)}, ""},
		{"valid market", Order{MarketID: "m1", Side: SideSell, Type: TypeMarket, Size: 1}, ""},
		{"missing market", Order{Side: SideBuy, Type: TypeMarket, Size: 1}, "market_id"},
		{"unknown side", Order{MarketID: "m1", Type: TypeMarket, Size: 1}, "side"},
		{"unknown type", Order{MarketID: "m1", Side: SideBuy, Size: 1}, "type"},
		{"zero size", Order{MarketID: "m1", Side: SideBuy, Type: TypeMarket, Size: 0}, "size"},
		{"negative size", Order{MarketID: "m1", Side: SideBuy, Type: TypeMarket, Size: -3}, "size"},
		{"gtc without price", Order{MarketID: "m1", Side: SideBuy, Type: TypeGTC, Size: 1}, "price"},
		{"fok without price", Order{MarketID: "m1", Side: SideSell, Type: TypeFOK, Size: 1}, "price"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.order.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("expected valid order, got %v", err)
				}
				return
			}
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve := err.(*ValidationError); ve.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, ve.Field)
			}
		})
	}
}

func TestBuySellDefaults(t *testing.T) {
	b, err := Buy("m1", "YES", 10, PriceOf(0.49))
	if err != nil {
		t.Fatal(err)
	}
	if b.Type != TypeLimit || b.Side != SideBuy {
		t.Errorf("expected BUY LIMIT, got %s %s", b.Side, b.Type)
	}

	s, err := Sell("m1", "YES", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != TypeMarket || s.Side != SideSell {
		t.Errorf("expected SELL MARKET, got %s %s", s.Side, s.Type)
	}

	s, err = Sell("m1", "YES", 10, PriceOf(0.45))
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != TypeMarket || s.Price == nil || *s.Price != 0.45 {
		t.Errorf("expected SELL MARKET with protective price, got %s", s)
	}

	if _, err := Buy("m1", "YES", 10, nil); !IsValidation(err) {
		t.Errorf("expected validation error for buy without price, got %v", err)
	}
	if _, err := Buy("m1", "YES", 0, PriceOf(0.5)); !IsValidation(err) {
		t.Errorf("expected validation error for zero size, got %v", err)
	}
}

func TestPriced(t *testing.T) {
	for _, typ := range []Type{TypeLimit, TypeGTC, TypeGTD, TypeFOK, TypeFAK} {
		if !typ.Priced() {
			t.Errorf("%s should require a price", typ)
		}
	}
	if TypeMarket.Priced() {
		t.Error("MARKET should not require a price")
	}
}

func TestJSONWireFormat(t *testing.T) {
	o := Order{MarketID: "m1", TokenID: "YES", Side: SideSell, Type: TypeGTD, Size: 5, Price: PriceOf(0.51)}
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"market_id":"m1","token_id":"YES","side":"SELL","type":"GTD","size":5,"price":0.51}`
	if string(data) != want {
		t.Errorf("wire format mismatch:\n got %s\nwant %s", data, want)
	}

	m := Order{MarketID: "m1", TokenID: "YES", Side: SideBuy, Type: TypeMarket, Size: 2}
	data, err = json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "price") {
		t.Errorf("market order should omit price, got %s", data)
	}
}

func TestDecode(t *testing.T) {
	o, err := Decode([]byte(`{"market_id":"m1","token_id":"YES","side":"BUY","type":"LIMIT","size":10,"price":0.49}`))
	if err != nil {
		t.Fatal(err)
	}
	if o.Side != SideBuy || o.Type != TypeLimit || o.Size != 10 || *o.Price != 0.49 {
		t.Errorf("unexpected decoded order %+v", o)
	}

	testCases := []struct {
		desc string
		data string
	}{
		{"missing price", `{"market_id":"m1","side":"BUY","type":"LIMIT","size":10}`},
		{"missing size", `{"market_id":"m1","side":"BUY","type":"MARKET"}`},
		{"unknown side", `{"market_id":"m1","side":"HOLD","type":"MARKET","size":1}`},
		{"unknown type", `{"market_id":"m1","side":"BUY","type":"ICEBERG","size":1}`},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if _, err := Decode([]byte(tc.data)); !IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestMarshalUnknownEnumFails(t *testing.T) {
	if _, err := json.Marshal(Order{MarketID: "m1", Size: 1}); err == nil {
		t.Error("expected marshal error for unknown side")
	}
}
