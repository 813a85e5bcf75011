package msg

// Config holds Kafka client configuration
type Config struct {
	Brokers  []string
	ClientID string
}

// Enabled reports whether any broker is configured
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Topic names
const (
	TopicOrderEvents = "gateway.orders"
	TopicTradeEvents = "gateway.trades"
	TopicMarketData  = "gateway.marketdata"
)
