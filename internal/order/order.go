package order

import (
	"encoding/json"
	"fmt"
)

// Side is the direction of an order.
type Side int

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide converts the wire representation into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("unknown order side %q", s)
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != SideBuy && s != SideSell {
		return nil, fmt.Errorf("cannot marshal order side %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Type is the execution style of an order.
type Type int

const (
	TypeUnknown Type = iota
	TypeMarket
	TypeLimit
	TypeGTC // good till cancelled
	TypeGTD // good till date
	TypeFOK // fill or kill
	TypeFAK // fill and kill
)

var typeNames = map[Type]string{
	TypeMarket: "MARKET",
	TypeLimit:  "LIMIT",
	TypeGTC:    "GTC",
	TypeGTD:    "GTD",
	TypeFOK:    "FOK",
	TypeFAK:    "FAK",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseType converts the wire representation into a Type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown order type %q", s)
}

// Priced reports whether orders of this type must carry a limit price.
// Every known type except MARKET is part of the limit family.
func (t Type) Priced() bool {
	switch t {
	case TypeLimit, TypeGTC, TypeGTD, TypeFOK, TypeFAK:
		return true
	default:
		return false
	}
}

func (t Type) MarshalText() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("cannot marshal order type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Order is a candidate order proposed by a strategy. It is a value: once
// produced it is validated, gated, queued or dropped within one cycle.
type Order struct {
	MarketID string   `json:"market_id"`
	TokenID  string   `json:"token_id"`
	Side     Side     `json:"side"`
	Type     Type     `json:"type"`
	Size     float64  `json:"size"`
	Price    *float64 `json:"price,omitempty"`
}

// New builds an order and validates it.
func New(marketID, tokenID string, side Side, typ Type, size float64, price *float64) (Order, error) {
	o := Order{
		MarketID: marketID,
		TokenID:  tokenID,
		Side:     side,
		Type:     typ,
		Size:     size,
		Price:    price,
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Buy builds a BUY LIMIT order. A missing price is a ValidationError.
func Buy(marketID, tokenID string, size float64, price *float64) (Order, error) {
	return New(marketID, tokenID, SideBuy, TypeLimit, size, price)
}

// Sell builds a SELL MARKET order. A price, if given, is kept as the
// protective price the risk gate checks.
func Sell(marketID, tokenID string, size float64, price *float64) (Order, error) {
	return New(marketID, tokenID, SideSell, TypeMarket, size, price)
}

// PriceOf returns a pointer to p, for building priced orders inline.
func PriceOf(p float64) *float64 {
	return &p
}

// Validate checks the structural requirements of an order. It does not look
// at positions, balances or price bounds; that is the risk gate's job.
func (o Order) Validate() error {
	if o.MarketID == "" {
		return &ValidationError{Field: "market_id", Reason: "must not be empty"}
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return &ValidationError{Field: "side", Reason: fmt.Sprintf("unknown side %d", int(o.Side))}
	}
	if _, ok := typeNames[o.Type]; !ok {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %d", int(o.Type))}
	}
	if !(o.Size > 0) {
		return &ValidationError{Field: "size", Reason: fmt.Sprintf("must be positive, got %v", o.Size)}
	}
	if o.Type.Priced() && o.Price == nil {
		return &ValidationError{Field: "price", Reason: o.Type.String() + " order requires a price"}
	}
	return nil
}

// HasPrice reports whether the order carries a price, returning it if so.
func (o Order) HasPrice() (float64, bool) {
	if o.Price == nil {
		return 0, false
	}
	return *o.Price, true
}

func (o Order) String() string {
	if p, ok := o.HasPrice(); ok {
		return fmt.Sprintf("%s %s %v %s @ %.4f", o.Side, o.Type, o.Size, o.MarketID, p)
	}
	return fmt.Sprintf("%s %s %v %s", o.Side, o.Type, o.Size, o.MarketID)
}

// Decode parses the wire representation and validates the result, so a
// missing price or size surfaces as a ValidationError instead of a zero.
func Decode(data []byte) (Order, error) {
	var raw struct {
		MarketID string   `json:"market_id"`
		TokenID  string   `json:"token_id"`
		Side     Side     `json:"side"`
		Type     Type     `json:"type"`
		Size     *float64 `json:"size"`
		Price    *float64 `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Order{}, &ValidationError{Field: "order", Reason: err.Error()}
	}
	if raw.Size == nil {
		return Order{}, &ValidationError{Field: "size", Reason: "missing"}
	}
	return New(raw.MarketID, raw.TokenID, raw.Side, raw.Type, *raw.Size, raw.Price)
}
