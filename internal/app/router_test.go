package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kis-gateway/internal/kis"
	"kis-gateway/internal/monitor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGateway struct {
	mu     sync.Mutex
	orders []kis.OrderRequest

	confirmation json.RawMessage
	holdings     kis.Holdings
	quotes       map[string]string
	topTraded    json.RawMessage
	err          error
}

func (g *fakeGateway) PlaceOrder(_ context.Context, order kis.OrderRequest) (json.RawMessage, error) {
	g.mu.Lock()
	g.orders = append(g.orders, order)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.confirmation, nil
}

func (g *fakeGateway) Holdings(context.Context) (kis.Holdings, error) {
	if g.err != nil {
		return kis.Holdings{}, g.err
	}
	return g.holdings, nil
}

func (g *fakeGateway) Quote(_ context.Context, code string) (kis.Quote, bool, error) {
	if g.err != nil {
		return kis.Quote{}, false, g.err
	}
	price, ok := g.quotes[code]
	if !ok {
		return kis.Quote{}, false, nil
	}
	return kis.Quote{Price: price, Code: code}, true, nil
}

func (g *fakeGateway) TopTraded(context.Context) (json.RawMessage, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.topTraded, nil
}

type fakeEventLog struct {
	mu       sync.Mutex
	events   []monitor.Event
	recorded []map[string]interface{}
	lastType monitor.EventType
	lastN    int
}

func (l *fakeEventLog) ListEvents(_ context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastType = eventType
	l.lastN = limit
	return l.events, nil
}

func (l *fakeEventLog) RecordError(_ context.Context, msg string, err error, ctxMap map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := map[string]interface{}{"message": msg, "error": err.Error()}
	for k, v := range ctxMap {
		entry[k] = v
	}
	l.recorded = append(l.recorded, entry)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(gw *fakeGateway, events *fakeEventLog) *gin.Engine {
	return newRouter(&handler{
		gateway: gw,
		quotes:  kis.NewQuoteService(gw, 2, nil),
		events:  events,
		health:  fakePinger{},
	})
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestOrderRoutes_PassConfirmationThrough(t *testing.T) {
	gw := &fakeGateway{confirmation: json.RawMessage(`{"rt_cd":"0","msg1":"주문 전송 완료 되었습니다.","output":{"ODNO":"0000117057"}}`)}
	router := newTestRouter(gw, &fakeEventLog{})

	rec := doRequest(t, router, http.MethodPost, "/api/stock/buy", `{"stockCode":"005930","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(gw.confirmation), rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = doRequest(t, router, http.MethodPost, "/api/stock/sell", `{"instrumentCode":"000660","quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, gw.orders, 2)
	assert.Equal(t, kis.OrderRequest{InstrumentCode: "005930", Quantity: 3, Side: kis.SideBuy}, gw.orders[0])
	assert.Equal(t, kis.OrderRequest{InstrumentCode: "000660", Quantity: 1, Side: kis.SideSell}, gw.orders[1])
}

func TestOrderRoutes_RejectInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"zero quantity":     `{"stockCode":"005930","quantity":0}`,
		"negative quantity": `{"stockCode":"005930","quantity":-2}`,
		"missing quantity":  `{"stockCode":"005930"}`,
		"missing code":      `{"quantity":1}`,
		"not json":          `stockCode=005930`,
		"string quantity":   `{"stockCode":"005930","quantity":"3"}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			gw := &fakeGateway{}
			router := newTestRouter(gw, &fakeEventLog{})

			rec := doRequest(t, router, http.MethodPost, "/api/stock/buy", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, errorBody(t, rec))
			assert.Empty(t, gw.orders)
		})
	}
}

func TestRoutes_GatewayErrorsMapTo500(t *testing.T) {
	failures := []error{
		&kis.BusinessError{Operation: kis.OpHoldings, Code: "1", Message: "limit exceeded"},
		&kis.TransportError{Operation: kis.OpHoldings, StatusCode: 502, Err: errors.New("bad gateway")},
		&kis.MalformedResponseError{Operation: kis.OpHoldings, Err: errors.New("unexpected EOF")},
		&kis.CredentialIssuanceError{Reason: "券商拒绝签发", StatusCode: 403},
	}
	routes := []struct{ method, path, body string }{
		{http.MethodPost, "/api/stock/buy", `{"stockCode":"005930","quantity":1}`},
		{http.MethodGet, "/api/stock/my-stocks", ""},
		{http.MethodGet, "/api/stock/details/005930", ""},
		{http.MethodGet, "/api/stock/prices?codes=005930", ""},
		{http.MethodGet, "/api/stock-recommendation/top-traded", ""},
	}

	for _, failure := range failures {
		for _, route := range routes {
			events := &fakeEventLog{}
			router := newTestRouter(&fakeGateway{err: failure}, events)

			rec := doRequest(t, router, route.method, route.path, route.body)
			assert.Equal(t, http.StatusInternalServerError, rec.Code, route.path)
			assert.Equal(t, failure.Error(), errorBody(t, rec), route.path)
			require.Len(t, events.recorded, 1, route.path)
			assert.Equal(t, string(kis.Classify(failure)), events.recorded[0]["outcome"])
		}
	}
}

func TestMyStocks_ReturnsProviderHoldingsVerbatim(t *testing.T) {
	const position = `{"pdno":"005930","prdt_name":"삼성전자","thdt_buyqty":"3","trad_dvsn_name":"현금","hldg_qty":10}`
	const summary = `{"tot_evlu_amt":"700000","dnca_tot_amt":1000000}`

	gw := &fakeGateway{holdings: kis.Holdings{
		Stocks:         []json.RawMessage{json.RawMessage(position)},
		AccountSummary: json.RawMessage(summary),
		AccountNumber:  "50000000-01",
	}}
	router := newTestRouter(gw, &fakeEventLog{})

	rec := doRequest(t, router, http.MethodGet, "/api/stock/my-stocks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stocks":[`+position+`],"accountSummary":`+summary+`,"accountNumber":"50000000-01"}`, rec.Body.String())
}

func TestDetails_FoundAndSoftMiss(t *testing.T) {
	gw := &fakeGateway{quotes: map[string]string{"005930": "70000"}}
	router := newTestRouter(gw, &fakeEventLog{})

	rec := doRequest(t, router, http.MethodGet, "/api/stock/details/005930", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"price":"70000","code":"005930"}`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/stock/details/999999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errQuoteNotFound.Error(), errorBody(t, rec))
}

func TestPrices_BatchQuotes(t *testing.T) {
	gw := &fakeGateway{quotes: map[string]string{"005930": "70000", "000660": "180000"}}
	router := newTestRouter(gw, &fakeEventLog{})

	rec := doRequest(t, router, http.MethodGet, "/api/stock/prices?codes=000660,999999,005930", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"price":"180000","code":"000660"},{"price":"70000","code":"005930"}]`, rec.Body.String())

	rec = doRequest(t, router, http.MethodGet, "/api/stock/prices", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTopTraded_ReturnsRawPayload(t *testing.T) {
	payload := `{"rt_cd":"0","output":[{"hts_kor_isnm":"삼성전자","mksc_shrn_iscd":"005930","data_rank":"1"}]}`
	gw := &fakeGateway{topTraded: json.RawMessage(payload)}
	router := newTestRouter(gw, &fakeEventLog{})

	rec := doRequest(t, router, http.MethodGet, "/api/stock-recommendation/top-traded", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, payload, rec.Body.String())
	assert.Equal(t, jsonContentType, rec.Header().Get("Content-Type"))
}

func TestEvents_QueryParameters(t *testing.T) {
	events := &fakeEventLog{events: []monitor.Event{{Type: monitor.EventBrokerCall, Payload: json.RawMessage(`{"operation":"issue_token"}`)}}}
	router := newTestRouter(&fakeGateway{}, events)

	rec := doRequest(t, router, http.MethodGet, "/api/events?type=BROKER_CALL&limit=5000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitor.EventBrokerCall, events.lastType)
	assert.Equal(t, maxEventPage, events.lastN)

	rec = doRequest(t, router, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, monitor.EventType(""), events.lastType)
	assert.Equal(t, defaultEventPage, events.lastN)

	rec = doRequest(t, router, http.MethodGet, "/api/events?type=orders", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newRouter(&handler{gateway: &fakeGateway{}, health: fakePinger{}})
	rec := doRequest(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	router = newRouter(&handler{gateway: &fakeGateway{}, health: fakePinger{err: errors.New("database is locked")}})
	rec = doRequest(t, router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestID_PropagatesCallerValue(t *testing.T) {
	router := newTestRouter(&fakeGateway{}, &fakeEventLog{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(requestIDHeader))
}
