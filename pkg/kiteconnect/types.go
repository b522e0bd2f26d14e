package kiteconnect

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// APIError is a non-success Kite response.
type APIError struct {
	HTTPStatus int
	ErrorType  string // TokenException, InputException, OrderException, ...
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("kite %d %s: %s", e.HTTPStatus, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("kite %d: %s", e.HTTPStatus, e.Message)
}

// TimeLayout is the timestamp format used in Kite payloads (exchange time, IST).
const TimeLayout = "2006-01-02 15:04:05"

type UserSession struct {
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Email        string `json:"email"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	PublicToken  string `json:"public_token"`
	LoginTime    string `json:"login_time"`
}

type UserProfile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	Exchanges []string `json:"exchanges"`
	Products  []string `json:"products"`
}

type Margins struct {
	Enabled   bool    `json:"enabled"`
	Net       float64 `json:"net"`
	Available struct {
		Cash        float64 `json:"cash"`
		LiveBalance float64 `json:"live_balance"`
	} `json:"available"`
	Utilised struct {
		Debits float64 `json:"debits"`
	} `json:"utilised"`
}

type AllMargins struct {
	Equity    Margins `json:"equity"`
	Commodity Margins `json:"commodity"`
}

// OrderParams are the form fields of place/modify calls. Zero values are omitted.
type OrderParams struct {
	Exchange          string
	TradingSymbol     string
	TransactionType   string
	OrderType         string
	Product           string
	Validity          string
	Quantity          int64
	Price             float64
	TriggerPrice      float64
	DisclosedQuantity int64
	Tag               string
}

func (p OrderParams) values() url.Values {
	v := url.Values{}
	set := func(k, s string) {
		if s != "" {
			v.Set(k, s)
		}
	}
	set("exchange", p.Exchange)
	set("tradingsymbol", p.TradingSymbol)
	set("transaction_type", p.TransactionType)
	set("order_type", p.OrderType)
	set("product", p.Product)
	set("validity", p.Validity)
	set("tag", p.Tag)
	if p.Quantity > 0 {
		v.Set("quantity", strconv.FormatInt(p.Quantity, 10))
	}
	if p.Price > 0 {
		v.Set("price", strconv.FormatFloat(p.Price, 'f', -1, 64))
	}
	if p.TriggerPrice > 0 {
		v.Set("trigger_price", strconv.FormatFloat(p.TriggerPrice, 'f', -1, 64))
	}
	if p.DisclosedQuantity > 0 {
		v.Set("disclosed_quantity", strconv.FormatInt(p.DisclosedQuantity, 10))
	}
	return v
}

type OrderResponse struct {
	OrderID string `json:"order_id"`
}

type Order struct {
	OrderID         string  `json:"order_id"`
	Status          string  `json:"status"`
	StatusMessage   string  `json:"status_message"`
	Variety         string  `json:"variety"`
	Exchange        string  `json:"exchange"`
	TradingSymbol   string  `json:"tradingsymbol"`
	TransactionType string  `json:"transaction_type"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Quantity        int64   `json:"quantity"`
	FilledQuantity  int64   `json:"filled_quantity"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
	AveragePrice    float64 `json:"average_price"`
	Tag             string  `json:"tag"`
	OrderTimestamp  string  `json:"order_timestamp"`
}

type Holding struct {
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	ISIN            string  `json:"isin"`
	InstrumentToken uint32  `json:"instrument_token"`
	Quantity        int64   `json:"quantity"`
	T1Quantity      int64   `json:"t1_quantity"`
	AveragePrice    float64 `json:"average_price"`
	LastPrice       float64 `json:"last_price"`
	PnL             float64 `json:"pnl"`
	Product         string  `json:"product"`
}

type Position struct {
	TradingSymbol string  `json:"tradingsymbol"`
	Exchange      string  `json:"exchange"`
	Product       string  `json:"product"`
	Quantity      int64   `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

type Positions struct {
	Net []Position `json:"net"`
	Day []Position `json:"day"`
}

type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

type Quote struct {
	InstrumentToken uint32  `json:"instrument_token"`
	Timestamp       string  `json:"timestamp"`
	LastPrice       float64 `json:"last_price"`
	Volume          int64   `json:"volume"`
	OHLC            OHLC    `json:"ohlc"`
}

type LTP struct {
	InstrumentToken uint32  `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
}

// Instrument is one row of the instrument dump.
type Instrument struct {
	InstrumentToken string
	ExchangeToken   string
	TradingSymbol   string
	Name            string
	LastPrice       float64
	Expiry          string
	Strike          float64
	TickSize        float64
	LotSize         int
	InstrumentType  string
	Segment         string
	Exchange        string
}

var instrumentColumns = []string{
	"instrument_token", "exchange_token", "tradingsymbol", "name", "last_price", "expiry",
	"strike", "tick_size", "lot_size", "instrument_type", "segment", "exchange",
}

// ParseInstruments reads the instrument CSV. The header row locates columns;
// malformed rows are skipped and counted.
func ParseInstruments(r io.Reader) ([]Instrument, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("instrument csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range instrumentColumns {
		if _, ok := idx[col]; !ok {
			return nil, 0, fmt.Errorf("instrument csv: missing column %q", col)
		}
	}

	var (
		out     []Instrument
		skipped int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, skipped, err
		}
		inst, ok := parseInstrument(rec, idx)
		if !ok {
			skipped++
			continue
		}
		out = append(out, inst)
	}
	return out, skipped, nil
}

func parseInstrument(rec []string, idx map[string]int) (Instrument, bool) {
	field := func(name string) (string, bool) {
		i := idx[name]
		if i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	num := func(name string) (float64, bool) {
		s, ok := field(name)
		if !ok {
			return 0, false
		}
		if s == "" {
			return 0, true
		}
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}

	var inst Instrument
	var ok bool
	if inst.InstrumentToken, ok = field("instrument_token"); !ok || inst.InstrumentToken == "" {
		return inst, false
	}
	inst.ExchangeToken, _ = field("exchange_token")
	if inst.TradingSymbol, ok = field("tradingsymbol"); !ok || inst.TradingSymbol == "" {
		return inst, false
	}
	inst.Name, _ = field("name")
	inst.Expiry, _ = field("expiry")
	inst.InstrumentType, _ = field("instrument_type")
	inst.Segment, _ = field("segment")
	if inst.Exchange, ok = field("exchange"); !ok {
		return inst, false
	}
	if inst.LastPrice, ok = num("last_price"); !ok {
		return inst, false
	}
	if inst.Strike, ok = num("strike"); !ok {
		return inst, false
	}
	if inst.TickSize, ok = num("tick_size"); !ok {
		return inst, false
	}
	lot, ok := num("lot_size")
	if !ok {
		return inst, false
	}
	inst.LotSize = int(lot)
	return inst, true
}
