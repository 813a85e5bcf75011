package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange/paper"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"github.com/ismaiel54/unified-trading-gateway/internal/observability"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type frame struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ex, err := paper.New(config.DefaultExchanges()[0], zap.NewNop())
	require.NoError(t, err)
	registry, err := exchange.NewRegistry(ex)
	require.NoError(t, err)

	market := marketdata.NewHub(registry, zap.NewNop(), 32, 10)
	t.Cleanup(market.Close)
	users := userdata.NewHub(zap.NewNop(), 32, 10)
	health := observability.NewHealthChecker(zap.NewNop())

	srv := httptest.NewServer(NewServer(market, users, health, []string{"*"}, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMarketStreamOverWebsocket(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "/ws/market")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"subscriptions":[{"exchange":"paper","channel":"TICKER","symbol":"BTCUSDT"}]}`)))

	f := readFrame(t, conn)
	assert.Equal(t, "SUBSCRIBED", f.Event)
	assert.Equal(t, "TICKER", f.Channel)
	f = readFrame(t, conn)
	assert.Equal(t, "SNAPSHOT", f.Event)
	assert.Equal(t, "BTCUSDT", f.Symbol)
}

func TestMarketStreamRejectsInvalidRequest(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "/ws/market")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"subscriptions":[]}`)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestUserStreamStartsAuthenticated(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "/ws/user")

	want := []string{"AUTHENTICATED", "ORDER_SNAPSHOT", "TRADE_SNAPSHOT", "ACCOUNT_SNAPSHOT"}
	for _, w := range want {
		assert.Equal(t, w, readFrame(t, conn).Event)
	}
}

func TestTruncateReasonKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncateReason("short", maxCloseReason))

	// "€" is three bytes; 41 of them straddle the limit
	long := strings.Repeat("€", 41)
	cut := truncateReason(long, maxCloseReason)
	assert.True(t, utf8.ValidString(cut))
	assert.Len(t, cut, 120)

	cut = truncateReason("a"+long, maxCloseReason)
	assert.True(t, utf8.ValidString(cut))
	assert.Len(t, cut, 118)
	assert.LessOrEqual(t, len(cut), maxCloseReason)
}
