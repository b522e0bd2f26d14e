package kite

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/broker"
	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

var fixedNow = time.Date(2026, 1, 5, 10, 0, 0, 0, markethours.IST)

func newTestAdapter(t *testing.T, mux *http.ServeMux) *Adapter {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	a := New(broker.Credentials{APIKey: "key", APISecret: "secret"},
		WithBaseURL(srv.URL),
		WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(func() { a.Close() })
	return a
}

func loggedIn(t *testing.T, a *Adapter) {
	t.Helper()
	a.UseSession(model.Session{
		Broker:      broker.Zerodha,
		UserID:      "AB1234",
		AccessToken: "acc",
		LoginTime:   fixedNow,
		ExpiresAt:   markethours.KiteSessionExpiry(fixedNow),
	})
}

func TestLoginURL(t *testing.T) {
	a := New(broker.Credentials{APIKey: "abc"})
	assert.Equal(t, "https://kite.zerodha.com/connect/login?v=3&api_key=abc", a.LoginURL())
}

func TestCreateSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/session/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("request_token") != "good" {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`)
			return
		}
		io.WriteString(w, `{"status":"success","data":{"user_id":"AB1234","user_name":"Test","access_token":"acc","login_time":"2026-01-05 09:00:00"}}`)
	})
	a := newTestAdapter(t, mux)

	_, ok := a.Session()
	assert.False(t, ok)

	sess, err := a.CreateSession(context.Background(), broker.AuthArtifact{RequestToken: "good"})
	require.NoError(t, err)
	assert.Equal(t, "AB1234", sess.UserID)
	assert.True(t, sess.ExpiresAt.Equal(time.Date(2026, 1, 6, 6, 0, 0, 0, markethours.IST)))

	got, ok := a.Session()
	assert.True(t, ok)
	assert.Equal(t, "acc", got.AccessToken)

	_, err = a.CreateSession(context.Background(), broker.AuthArtifact{RequestToken: "bad"})
	assert.True(t, errors.Is(err, tradeerr.ErrAuth))

	_, err = a.CreateSession(context.Background(), broker.AuthArtifact{})
	assert.True(t, errors.Is(err, tradeerr.ErrAuth))
}

func TestRequiresSession(t *testing.T) {
	a := newTestAdapter(t, http.NewServeMux())

	_, err := a.GetFunds(context.Background())
	assert.True(t, errors.Is(err, tradeerr.ErrAuth))

	a.UseSession(model.Session{AccessToken: "x", ExpiresAt: fixedNow.Add(-time.Minute)})
	_, err = a.GetHoldings(context.Background())
	assert.True(t, errors.Is(err, tradeerr.ErrAuth))
	assert.Contains(t, err.Error(), "zerodha")
}

const instruments = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
408065,1594,INFY,INFOSYS,0,,0,0.05,1,EQ,NSE,NSE
256265,1001,NIFTY 50,NIFTY 50,0,,0,0,0,EQ,INDICES,NSE
265,1,SENSEX,SENSEX,0,,0,0,0,EQ,INDICES,BSE
500209,1954,INFY,INFOSYS,0,,0,0.05,1,EQ,BSE,BSE
9999,9,NIFTY26JAN24000CE,NIFTY,0,2026-01-29,24000,0.05,75,CE,NFO-OPT,NFO
12,1,BROKEN,BROKEN,x,,0,0.05,1,EQ,NSE,NSE
`

func TestDownloadCatalog(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/instruments", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, instruments)
	})
	a := newTestAdapter(t, mux)

	rows, err := a.DownloadCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byKey := map[string]model.UnifiedSymbol{}
	for _, r := range rows {
		byKey[r.Instrument().Key()] = r
	}
	nifty := byKey["NSE_INDEX:NIFTY"]
	assert.Equal(t, model.InstrumentIndex, nifty.InstrumentType)
	assert.Equal(t, "NIFTY 50", nifty.BrokerSymbol)
	assert.Equal(t, model.InstrumentIndex, byKey["BSE_INDEX:SENSEX"].InstrumentType)
	assert.Equal(t, model.InstrumentEquity, byKey["NSE:INFY"].InstrumentType)
	assert.Equal(t, "408065", byKey["NSE:INFY"].BrokerToken)
	assert.Equal(t, 0.05, byKey["BSE:INFY"].TickSize)
}

func TestGetQuotes_MapsIndexNames(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.ElementsMatch(t, []string{"NSE:INFY", "NSE:NIFTY 50"}, r.URL.Query()["i"])
		io.WriteString(w, `{"status":"success","data":{
			"NSE:INFY":{"last_price":1600,"volume":5,"timestamp":"2026-01-05 10:00:00","ohlc":{"open":1590,"high":1610,"low":1580,"close":1595}},
			"NSE:NIFTY 50":{"last_price":24000,"ohlc":{"close":23900}}}}`)
	})
	a := newTestAdapter(t, mux)
	loggedIn(t, a)

	q, err := a.GetQuotes(context.Background(), []model.Instrument{
		{Exchange: model.ExchangeNSE, Symbol: "INFY"},
		{Exchange: model.ExchangeNSEIndex, Symbol: "NIFTY"},
	})
	require.NoError(t, err)
	require.Len(t, q, 2)
	assert.Equal(t, 1600.0, q["NSE:INFY"].LastPrice)
	assert.True(t, fixedNow.Equal(q["NSE:INFY"].Timestamp))
	assert.Equal(t, 24000.0, q["NSE_INDEX:NIFTY"].LastPrice)
	assert.Equal(t, "NIFTY", q["NSE_INDEX:NIFTY"].Symbol)
}

func TestGetLTP_ChunksRequests(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/quote/ltp", func(w http.ResponseWriter, r *http.Request) {
		calls++
		var b strings.Builder
		b.WriteString(`{"status":"success","data":{`)
		for i, k := range r.URL.Query()["i"] {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`"` + k + `":{"last_price":1}`)
		}
		b.WriteString(`}}`)
		io.WriteString(w, b.String())
	})
	a := newTestAdapter(t, mux)
	loggedIn(t, a)

	var ins []model.Instrument
	for i := 0; i < 1500; i++ {
		ins = append(ins, model.Instrument{Exchange: model.ExchangeNSE, Symbol: "S" + strconv.Itoa(i)})
	}
	ltp, err := a.GetLTP(context.Background(), ins)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, ltp, 1500)
}

func TestPlaceOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/regular", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "CNC", r.PostForm.Get("product"))
		assert.Equal(t, "DAY", r.PostForm.Get("validity"))
		if r.PostForm.Get("tradingsymbol") == "TCS" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"status":"error","message":"Insufficient funds","error_type":"MarginException"}`)
			return
		}
		io.WriteString(w, `{"status":"success","data":{"order_id":"1001"}}`)
	})
	a := newTestAdapter(t, mux)
	loggedIn(t, a)

	order := model.Order{Symbol: "INFY", Exchange: "NSE", TransactionType: "BUY", OrderType: "MARKET", Quantity: 15}
	res, err := a.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, model.OrderResult{OrderID: "1001", Status: model.StatusPlaced}, res)

	order.Symbol = "TCS"
	_, err = a.PlaceOrder(context.Background(), order)
	assert.True(t, errors.Is(err, tradeerr.ErrRejected))

	order.Quantity = 0
	_, err = a.PlaceOrder(context.Background(), order)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user/margins", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"status":"error","message":"Too many requests","error_type":"NetworkException"}`)
	})
	mux.HandleFunc("/portfolio/holdings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `<html>bad gateway</html>`)
	})
	a := newTestAdapter(t, mux)
	loggedIn(t, a)

	_, err := a.GetFunds(context.Background())
	assert.True(t, errors.Is(err, tradeerr.ErrRateLimit))

	_, err = a.GetHoldings(context.Background())
	assert.True(t, errors.Is(err, tradeerr.ErrNetwork))
	assert.True(t, tradeerr.Retryable(err))
}

func TestHoldingsAndFunds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portfolio/holdings", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":[{"tradingsymbol":"TCS","exchange":"NSE","isin":"INE467B01029","instrument_token":2953217,"quantity":4,"t1_quantity":1,"average_price":4000,"last_price":4200}]}`)
	})
	mux.HandleFunc("/user/margins", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"success","data":{"equity":{"net":90000,"available":{"cash":100000},"utilised":{"debits":10000}}}}`)
	})
	a := newTestAdapter(t, mux)
	loggedIn(t, a)

	h, err := a.GetHoldings(context.Background())
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.Equal(t, int64(5), h[0].Quantity)
	assert.Equal(t, "2953217", h[0].SymbolToken)

	f, err := a.GetFunds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Funds{AvailableCash: 100000, UsedMargin: 10000, Net: 90000}, f)
}
