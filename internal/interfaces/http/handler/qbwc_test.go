package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/application/qbwc"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/catalog"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/infrastructure/xmltree"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/router"
	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/interfaces/http/soap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockEngine is a mock implementation of Engine
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ServerVersion(ctx context.Context) string {
	return m.Called(ctx).String(0)
}

func (m *MockEngine) ClientVersion(ctx context.Context, version string) string {
	return m.Called(ctx, version).String(0)
}

func (m *MockEngine) Authenticate(ctx context.Context, username, password string) []string {
	return m.Called(ctx, username, password).Get(0).([]string)
}

func (m *MockEngine) SendRequestXML(ctx context.Context, in qbwc.SendRequestInput) string {
	return m.Called(ctx, in).String(0)
}

func (m *MockEngine) ReceiveResponseXML(ctx context.Context, in qbwc.ReceiveResponseInput) int {
	return m.Called(ctx, in).Int(0)
}

func (m *MockEngine) GetLastError(ctx context.Context, ticket string) string {
	return m.Called(ctx, ticket).String(0)
}

func (m *MockEngine) CloseConnection(ctx context.Context, ticket string) string {
	return m.Called(ctx, ticket).String(0)
}

func (m *MockEngine) ConnectionError(ctx context.Context, ticket, hresult, message string) string {
	return m.Called(ctx, ticket, hresult, message).String(0)
}

func (m *MockEngine) GetInteractiveURL(ctx context.Context) string {
	return m.Called(ctx).String(0)
}

func (m *MockEngine) InteractiveRejected(ctx context.Context, ticket string) string {
	return m.Called(ctx, ticket).String(0)
}

func (m *MockEngine) SessionCount() int {
	return m.Called().Int(0)
}

func (m *MockEngine) Diagnostics(ctx context.Context, recent int) qbwc.Diagnostics {
	return m.Called(ctx, recent).Get(0).(qbwc.Diagnostics)
}

func envelope(method, params string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		`<` + method + ` xmlns="http://developer.intuit.com/">` + params + `</` + method + `>` +
		`</soap:Body></soap:Envelope>`
}

func newTestRouter(engine Engine) *gin.Engine {
	router := gin.New()
	NewQBWCHandler(engine).RegisterRoutes(router)
	return router
}

func post(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, EndpointPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// resultOf extracts the text of the {method}Result element
func resultOf(t *testing.T, body, method string) *xmltree.Node {
	t.Helper()
	root, err := xmltree.ParseString(body)
	require.NoError(t, err)
	node := root.Find(func(n *xmltree.Node) bool { return n.Name == method+"Result" })
	require.NotNil(t, node, "no %sResult in %s", method, body)
	return node
}

func TestEndpoint_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		method string
		params string
		setup  func(m *MockEngine)
		want   string
	}{
		{
			name:   "serverVersion",
			method: qbwc.MethodServerVersion,
			setup:  func(m *MockEngine) { m.On("ServerVersion", mock.Anything).Return("190Group-QBWC-0.1.0") },
			want:   "190Group-QBWC-0.1.0",
		},
		{
			name:   "clientVersion",
			method: qbwc.MethodClientVersion,
			params: "<strVersion>2.3.0.215</strVersion>",
			setup:  func(m *MockEngine) { m.On("ClientVersion", mock.Anything, "2.3.0.215").Return("") },
			want:   "",
		},
		{
			name:   "sendRequestXML",
			method: qbwc.MethodSendRequestXML,
			params: "<ticket>t-1</ticket><strHCPResponse>&lt;x/&gt;</strHCPResponse><strCompanyFileName>C:\\QB.QBW</strCompanyFileName>" +
				"<qbXMLCountry>US</qbXMLCountry><qbXMLMajorVers>13</qbXMLMajorVers><qbXMLMinorVers>0</qbXMLMinorVers>",
			setup: func(m *MockEngine) {
				m.On("SendRequestXML", mock.Anything, qbwc.SendRequestInput{
					Ticket:          "t-1",
					HCPResponse:     "<x/>",
					CompanyFileName: `C:\QB.QBW`,
					Country:         "US",
					QBXMLMajor:      "13",
					QBXMLMinor:      "0",
				}).Return(`<?qbxml version="13.0"?><QBXML/>`)
			},
			want: `<?qbxml version="13.0"?><QBXML/>`,
		},
		{
			name:   "receiveResponseXML",
			method: qbwc.MethodReceiveResponseXML,
			params: "<ticket>t-1</ticket><response>&lt;QBXML/&gt;</response><hresult></hresult><message></message>",
			setup: func(m *MockEngine) {
				m.On("ReceiveResponseXML", mock.Anything, qbwc.ReceiveResponseInput{Ticket: "t-1", Response: "<QBXML/>"}).Return(100)
			},
			want: "100",
		},
		{
			name:   "getLastError",
			method: qbwc.MethodGetLastError,
			params: "<ticket>t-1</ticket>",
			setup:  func(m *MockEngine) { m.On("GetLastError", mock.Anything, "t-1").Return(qbwc.NoErrorMessage) },
			want:   qbwc.NoErrorMessage,
		},
		{
			name:   "closeConnection",
			method: qbwc.MethodCloseConnection,
			params: "<ticket>t-1</ticket>",
			setup:  func(m *MockEngine) { m.On("CloseConnection", mock.Anything, "t-1").Return(qbwc.CloseOK) },
			want:   "OK",
		},
		{
			name:   "connectionError",
			method: qbwc.MethodConnectionError,
			params: "<ticket>t-1</ticket><hresult>0x80040408</hresult><message>lost</message>",
			setup: func(m *MockEngine) {
				m.On("ConnectionError", mock.Anything, "t-1", "0x80040408", "lost").Return(qbwc.Done)
			},
			want: "done",
		},
		{
			name:   "getInteractiveURL",
			method: qbwc.MethodGetInteractiveURL,
			setup:  func(m *MockEngine) { m.On("GetInteractiveURL", mock.Anything).Return("") },
			want:   "",
		},
		{
			name:   "interactiveRejected",
			method: qbwc.MethodInteractiveRejected,
			params: "<ticket>t-1</ticket><reason>no</reason>",
			setup:  func(m *MockEngine) { m.On("InteractiveRejected", mock.Anything, "t-1").Return(qbwc.Done) },
			want:   "done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockEngine)
			tt.setup(engine)

			w := post(newTestRouter(engine), envelope(tt.method, tt.params))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, soap.ContentType, w.Header().Get("Content-Type"))
			assert.Equal(t, tt.want, resultOf(t, w.Body.String(), tt.method).Text)
			engine.AssertExpectations(t)
		})
	}
}

func TestEndpoint_Authenticate(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Authenticate", mock.Anything, "qbsync", "s3cret").Return([]string{"t-1", `C:\QB\190Group.QBW`})

	w := post(newTestRouter(engine), envelope(qbwc.MethodAuthenticate,
		"<strUserName>qbsync</strUserName><strPassword>s3cret</strPassword>"))

	require.Equal(t, http.StatusOK, w.Code)
	result := resultOf(t, w.Body.String(), qbwc.MethodAuthenticate)
	require.Len(t, result.Children, 2)
	assert.Equal(t, "t-1", result.Children[0].Text)
	assert.Equal(t, `C:\QB\190Group.QBW`, result.Children[1].Text)
}

func TestEndpoint_Faults(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantFault string
	}{
		{name: "unsupported method", body: envelope("fooBar", ""), wantFault: "Unsupported SOAP method: fooBar"},
		{name: "missing body", body: `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"/>`, wantFault: "Invalid SOAP request"},
		{name: "malformed xml", body: "<soap:Envelope><soap:Body>", wantFault: "Invalid SOAP request"},
		{name: "empty request", body: "", wantFault: "Invalid SOAP request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockEngine)
			w := post(newTestRouter(engine), tt.body)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, soap.ContentType, w.Header().Get("Content-Type"))
			assert.Contains(t, w.Body.String(), "<faultcode>soap:Client</faultcode>")
			assert.Contains(t, w.Body.String(), tt.wantFault)
			engine.AssertExpectations(t)
		})
	}
}

func TestEndpoint_EnginePanicBecomesFault(t *testing.T) {
	engine := new(MockEngine)
	engine.On("ServerVersion", mock.Anything).Run(func(mock.Arguments) {
		panic("catalog exploded")
	}).Return("")

	server := router.NewRouter(router.NewEngine(router.Config{ServiceName: ServiceName}, nil)).
		Register(NewQBWCHandler(engine)).
		Setup()
	w := post(server, envelope(qbwc.MethodServerVersion, ""))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, soap.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "<faultcode>soap:Client</faultcode>")
	assert.Contains(t, w.Body.String(), "Internal error: catalog exploded")
	engine.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	engine := new(MockEngine)
	engine.On("SessionCount").Return(2)

	w := httptest.NewRecorder()
	newTestRouter(engine).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"service":"qbsync","endpoint":"/qbwc","sessions":2}`, w.Body.String())
}

func TestStatus(t *testing.T) {
	engine := new(MockEngine)
	engine.On("Diagnostics", mock.Anything, StatusRecentLimit).Return(qbwc.Diagnostics{
		Sessions: 1,
		Catalog:  qbwc.CatalogDiagnostics{QueryMode: "inventory"},
	})

	w := httptest.NewRecorder()
	newTestRouter(engine).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Sessions int `json:"sessions"`
			Catalog  struct {
				QueryMode string `json:"queryMode"`
			} `json:"catalog"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Data.Sessions)
	assert.Equal(t, "inventory", body.Data.Catalog.QueryMode)
	engine.AssertExpectations(t)
}

// memQueue is a minimal ledger queue for the end-to-end exchange
type memQueue struct {
	mu      sync.Mutex
	events  []ledger.Event
	results []ledger.Result
}

func (q *memQueue) NextPending(_ context.Context, limit int) ([]ledger.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) > limit {
		return append([]ledger.Event(nil), q.events[:limit]...), nil
	}
	return append([]ledger.Event(nil), q.events...), nil
}

func (q *memQueue) MarkInFlight(context.Context, string, string) error { return nil }

func (q *memQueue) ApplyResult(_ context.Context, r ledger.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results = append(q.results, r)
	kept := q.events[:0]
	for _, e := range q.events {
		if e.ID != r.EventID {
			kept = append(kept, e)
		}
	}
	q.events = kept
	return nil
}

func TestEndpoint_FullExchange(t *testing.T) {
	cache := catalog.NewCache(catalog.ModeLive)
	require.NoError(t, cache.ReplaceAll(context.Background(), []string{"POT-9"}))
	queue := &memQueue{events: []ledger.Event{{
		ID:            "evt_1",
		Kind:          ledger.EventKindAdjustment,
		EffectiveDate: "2026-01-15",
		Lines:         []ledger.Line{{SKU: "POT-9", Qty: "-2", Site: "Main"}},
	}}}
	svc := qbwc.NewService(qbwc.Config{
		Username:          "qbsync",
		Password:          "s3cret",
		CompanyFile:       `C:\QB\190Group.QBW`,
		AdjustmentAccount: "Inventory Adjustments",
	}, queue, cache, qbwc.WithTicketGenerator(func() string { return "t-1" }))
	router := newTestRouter(svc)

	w := post(router, envelope(qbwc.MethodAuthenticate, "<strUserName>qbsync</strUserName><strPassword>s3cret</strPassword>"))
	require.Equal(t, "t-1", resultOf(t, w.Body.String(), qbwc.MethodAuthenticate).Children[0].Text)

	w = post(router, envelope(qbwc.MethodSendRequestXML, "<ticket>t-1</ticket><qbXMLMajorVers>13</qbXMLMajorVers><qbXMLMinorVers>0</qbXMLMinorVers>"))
	request := resultOf(t, w.Body.String(), qbwc.MethodSendRequestXML).Text
	assert.Contains(t, request, `<InventoryAdjustmentAddRq requestID="evt_1">`)

	response := `<?xml version="1.0" ?><QBXML><QBXMLMsgsRs><InventoryAdjustmentAddRs statusCode="0" statusSeverity="Info" statusMessage="Status OK">` +
		`<InventoryAdjustmentRet><TxnID>TX-9</TxnID></InventoryAdjustmentRet></InventoryAdjustmentAddRs></QBXMLMsgsRs></QBXML>`
	escaped := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(response)
	w = post(router, envelope(qbwc.MethodReceiveResponseXML, "<ticket>t-1</ticket><response>"+escaped+"</response><hresult/><message/>"))
	assert.Equal(t, "100", resultOf(t, w.Body.String(), qbwc.MethodReceiveResponseXML).Text)

	require.Len(t, queue.results, 1)
	assert.True(t, queue.results[0].Success)
	assert.Equal(t, "TX-9", queue.results[0].TxnID)

	w = post(router, envelope(qbwc.MethodCloseConnection, "<ticket>t-1</ticket>"))
	assert.Equal(t, "OK", resultOf(t, w.Body.String(), qbwc.MethodCloseConnection).Text)
	assert.Zero(t, svc.SessionCount())
}
