package smartconnect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// APIError is a non-success SmartAPI response.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("smartapi %d %s: %s", e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("smartapi %d: %s", e.HTTPStatus, e.Message)
}

// RateLimited reports whether the gateway throttled the call.
func (e *APIError) RateLimited() bool {
	return e.HTTPStatus == 429 || strings.Contains(strings.ToLower(e.Message), "access rate")
}

// FlexFloat decodes numbers SmartAPI sends either as JSON numbers or strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("flexfloat %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) Float64() float64 { return float64(f) }

// GenerateTOTP returns the current one-time code for a base32 TOTP secret.
func GenerateTOTP(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(strings.TrimSpace(secret), t)
}

type LoginData struct {
	JWTToken     string `json:"jwtToken"`
	RefreshToken string `json:"refreshToken"`
	FeedToken    string `json:"feedToken"`
}

type Profile struct {
	ClientCode string   `json:"clientcode"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Mobile     string   `json:"mobileno"`
	Exchanges  []string `json:"exchanges"`
	Products   []string `json:"products"`
}

// OrderParams is the placeOrder body. SmartAPI expects every field as a string.
type OrderParams struct {
	Variety         string `json:"variety"`
	TradingSymbol   string `json:"tradingsymbol"`
	SymbolToken     string `json:"symboltoken"`
	TransactionType string `json:"transactiontype"`
	Exchange        string `json:"exchange"`
	OrderType       string `json:"ordertype"`
	ProductType     string `json:"producttype"`
	Duration        string `json:"duration"`
	Price           string `json:"price,omitempty"`
	TriggerPrice    string `json:"triggerprice,omitempty"`
	Quantity        string `json:"quantity"`
	OrderTag        string `json:"ordertag,omitempty"`
}

type ModifyParams struct {
	Variety       string `json:"variety"`
	OrderID       string `json:"orderid"`
	OrderType     string `json:"ordertype"`
	ProductType   string `json:"producttype"`
	Duration      string `json:"duration"`
	Price         string `json:"price"`
	TriggerPrice  string `json:"triggerprice,omitempty"`
	Quantity      string `json:"quantity"`
	TradingSymbol string `json:"tradingsymbol"`
	SymbolToken   string `json:"symboltoken"`
	Exchange      string `json:"exchange"`
}

type OrderResponse struct {
	Script        string `json:"script"`
	OrderID       string `json:"orderid"`
	UniqueOrderID string `json:"uniqueorderid"`
}

type OrderBookEntry struct {
	Variety         string    `json:"variety"`
	OrderType       string    `json:"ordertype"`
	ProductType     string    `json:"producttype"`
	Duration        string    `json:"duration"`
	Price           FlexFloat `json:"price"`
	TriggerPrice    FlexFloat `json:"triggerprice"`
	Quantity        FlexFloat `json:"quantity"`
	FilledShares    FlexFloat `json:"filledshares"`
	AveragePrice    FlexFloat `json:"averageprice"`
	TradingSymbol   string    `json:"tradingsymbol"`
	SymbolToken     string    `json:"symboltoken"`
	TransactionType string    `json:"transactiontype"`
	Exchange        string    `json:"exchange"`
	OrderID         string    `json:"orderid"`
	OrderTag        string    `json:"ordertag"`
	Status          string    `json:"status"`
	OrderStatus     string    `json:"orderstatus"`
	Text            string    `json:"text"`
	UpdateTime      string    `json:"updatetime"`
}

type HoldingEntry struct {
	TradingSymbol string    `json:"tradingsymbol"`
	Exchange      string    `json:"exchange"`
	ISIN          string    `json:"isin"`
	SymbolToken   string    `json:"symboltoken"`
	Quantity      FlexFloat `json:"quantity"`
	T1Quantity    FlexFloat `json:"t1quantity"`
	AveragePrice  FlexFloat `json:"averageprice"`
	LTP           FlexFloat `json:"ltp"`
	Product       string    `json:"product"`
}

type PositionEntry struct {
	TradingSymbol string    `json:"tradingsymbol"`
	Exchange      string    `json:"exchange"`
	SymbolToken   string    `json:"symboltoken"`
	ProductType   string    `json:"producttype"`
	NetQty        FlexFloat `json:"netqty"`
	BuyQty        FlexFloat `json:"buyqty"`
	SellQty       FlexFloat `json:"sellqty"`
	NetPrice      FlexFloat `json:"netprice"`
	AvgNetPrice   FlexFloat `json:"avgnetprice"`
	LTP           FlexFloat `json:"ltp"`
	PnL           FlexFloat `json:"pnl"`
}

type RMS struct {
	Net            FlexFloat `json:"net"`
	AvailableCash  FlexFloat `json:"availablecash"`
	UtilisedDebits FlexFloat `json:"utiliseddebits"`
}

type MarketData struct {
	Fetched   []MarketQuote     `json:"fetched"`
	Unfetched []json.RawMessage `json:"unfetched"`
}

type MarketQuote struct {
	Exchange      string    `json:"exchange"`
	TradingSymbol string    `json:"tradingSymbol"`
	SymbolToken   string    `json:"symbolToken"`
	LTP           FlexFloat `json:"ltp"`
	Open          FlexFloat `json:"open"`
	High          FlexFloat `json:"high"`
	Low           FlexFloat `json:"low"`
	Close         FlexFloat `json:"close"`
	TradeVolume   FlexFloat `json:"tradeVolume"`
	ExchFeedTime  string    `json:"exchFeedTime"`
}

// ScripRow is one entry of the public instrument master. Prices are in paise.
// Invalid is set on rows that failed to decode.
type ScripRow struct {
	Token          string    `json:"token"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	Expiry         string    `json:"expiry"`
	Strike         FlexFloat `json:"strike"`
	LotSize        FlexFloat `json:"lotsize"`
	InstrumentType string    `json:"instrumenttype"`
	ExchSeg        string    `json:"exch_seg"`
	TickSize       FlexFloat `json:"tick_size"`
	Invalid        bool      `json:"-"`
}

// FeedTimeLayout is the exchFeedTime format of market quotes.
const FeedTimeLayout = "02-Jan-2006 15:04:05"
