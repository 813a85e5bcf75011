package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GATEWAY_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("PORT_GRPC", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := LoadConfig("gateway")
	assert.Equal(t, "gateway", cfg.ServiceName)
	assert.Equal(t, ":50051", cfg.GRPCAddr())
	assert.Nil(t, cfg.Brokers())
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "gateway.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT_HTTP=9090\nKAFKA_BROKERS=a:9092, b:9092\n"), 0o644))
	t.Setenv("GATEWAY_ENV_FILE", envFile)
	// godotenv does not override variables that are already set
	t.Setenv("PORT_HTTP", "")
	os.Unsetenv("PORT_HTTP")
	os.Unsetenv("KAFKA_BROKERS")
	t.Cleanup(func() {
		os.Unsetenv("PORT_HTTP")
		os.Unsetenv("KAFKA_BROKERS")
	})

	cfg := LoadConfig("gateway")
	assert.Equal(t, ":9090", cfg.HTTPAddr())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Brokers())
}

func TestParseExchanges(t *testing.T) {
	t.Setenv("PAPER_SEED", "7")
	data := []byte(`
exchanges:
  - name: paper
    symbols: [BTCUSDT]
    price_scale: 100
    volume_scale: 1000
    seed: ${PAPER_SEED}
    tick_interval: 250ms
    balances:
      USDT: 1000
  - name: collector
    driver: kafka
    symbols: [ETHUSDT]
    channels: [book, trade]
    price_scale: 10
    volume_scale: 10
`)
	exchanges, err := ParseExchanges(data)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)

	paper := exchanges[0]
	assert.Equal(t, DriverPaper, paper.Driver)
	assert.Equal(t, int64(7), paper.Seed)
	assert.Equal(t, 250*time.Millisecond, paper.TickInterval)
	assert.Equal(t, 1000.0, paper.Balances["USDT"])

	collector := exchanges[1]
	assert.Equal(t, "gateway-collector", collector.Group)
	channels, err := collector.ParsedChannels()
	require.NoError(t, err)
	assert.Equal(t, []gatewayv1.Channel{gatewayv1.ChannelBook, gatewayv1.ChannelTrade}, channels)
}

func TestParseExchangesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing scale": "exchanges:\n  - name: a\n    symbols: [X]\n",
		"unknown driver": "exchanges:\n  - name: a\n    driver: ftx\n    symbols: [X]\n    price_scale: 1\n    volume_scale: 1\n",
		"bad channel":   "exchanges:\n  - name: a\n    symbols: [X]\n    channels: [candles]\n    price_scale: 1\n    volume_scale: 1\n",
		"duplicate":     "exchanges:\n  - {name: a, symbols: [X], price_scale: 1, volume_scale: 1}\n  - {name: a, symbols: [Y], price_scale: 1, volume_scale: 1}\n",
	}
	for name, doc := range cases {
		_, err := ParseExchanges([]byte(doc))
		assert.Error(t, err, name)
	}

	_, err := ParseExchanges([]byte("exchanges: []\n"))
	assert.ErrorIs(t, err, ErrNoExchanges)
}

func TestLoadExchangesMissingFileUsesDefaults(t *testing.T) {
	exchanges, err := LoadExchanges(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.NoError(t, exchanges[0].Validate())
	assert.Equal(t, "paper", exchanges[0].Name)
}
