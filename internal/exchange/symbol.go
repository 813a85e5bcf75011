package exchange

import "strings"

// quoteCurrencies are matched longest first so that USDT wins over USD.
var quoteCurrencies = []string{"FDUSD", "USDT", "USDC", "BUSD", "TWD", "USD", "EUR", "BTC", "ETH", "BNB"}

// SplitSymbol splits a market symbol like "BTCUSDT" or "BTC/USDT" into base
// and quote currencies.
func SplitSymbol(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, sep := range []string{"/", "-", "_"} {
		if i := strings.Index(s, sep); i > 0 && i < len(s)-1 {
			return s[:i], s[i+1:], true
		}
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q, true
		}
	}
	return "", "", false
}
