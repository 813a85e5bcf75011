package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/rpc"
	"github.com/spf13/cobra"
)

const pnlPageSize = 1000

func init() {
	pnlCmd.Flags().String("symbol", "BTCUSDT", "trading symbol")
	pnlCmd.Flags().String("since", "", "only trades since this date, YYYY-MM-DD in UTC")
	pnlCmd.Flags().Float64("price", 0, "mark price, 0 for the last 1m candle close")
	RootCmd.AddCommand(pnlCmd)
}

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "profit and loss of stored trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, _ := cmd.Flags().GetString("symbol")
		symbol = strings.ToUpper(symbol)
		since, _ := cmd.Flags().GetString("since")
		price, _ := cmd.Flags().GetFloat64("price")

		startTime := time.Now().AddDate(-2, 0, 0)
		if since != "" {
			t, err := time.Parse("2006-01-02", since)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			startTime = t
		}

		return withClient(func(ctx context.Context, client *rpc.Client) error {
			trades, err := loadTrades(ctx, client, symbol, startTime.UnixMilli())
			if err != nil {
				return err
			}
			if price == 0 {
				if price, err = lastClose(ctx, client, symbol); err != nil {
					return err
				}
			}
			return printJSON(calculatePnL(symbol, startTime, price, trades))
		})
	},
}

// loadTrades pages through every stored trade of symbol since from
func loadTrades(ctx context.Context, client *rpc.Client, symbol string, from int64) ([]gatewayv1.Trade, error) {
	var all []gatewayv1.Trade
	for page := int64(1); ; page++ {
		list, err := client.Trades(ctx, &gatewayv1.QueryTradesRequest{
			Exchange:   exchangeName,
			Symbol:     symbol,
			From:       from,
			OrderBy:    "created_at",
			Pagination: true,
			Page:       page,
			Limit:      pnlPageSize,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, list...)
		if len(list) < pnlPageSize {
			return all, nil
		}
	}
}

func lastClose(ctx context.Context, client *rpc.Client, symbol string) (float64, error) {
	klines, err := client.KLines(ctx, &gatewayv1.QueryKLinesRequest{
		Exchange: exchangeName,
		Symbol:   symbol,
		Interval: "1m",
		Limit:    1,
	})
	if err != nil {
		return 0, err
	}
	if len(klines) == 0 {
		return 0, fmt.Errorf("no candles for %s, pass --price", symbol)
	}
	return klines[len(klines)-1].Close, nil
}

type pnlReport struct {
	Symbol           string             `json:"symbol"`
	StartTime        time.Time          `json:"start_time"`
	NumTrades        int                `json:"num_trades"`
	BuyVolume        float64            `json:"buy_volume"`
	SellVolume       float64            `json:"sell_volume"`
	Position         float64            `json:"position"`
	AverageCost      float64            `json:"average_cost"`
	CurrentPrice     float64            `json:"current_price"`
	Profit           float64            `json:"profit"`
	UnrealizedProfit float64            `json:"unrealized_profit"`
	Fees             float64            `json:"fees"`
	NetProfit        float64            `json:"net_profit"`
	OtherFees        map[string]float64 `json:"other_fees,omitempty"`
}

// calculatePnL replays trades in time order against an average cost
// position. Profit is realized when a trade reduces the position; fees in
// the base or quote currency are valued in quote at the trade price.
func calculatePnL(symbol string, startTime time.Time, currentPrice float64, trades []gatewayv1.Trade) pnlReport {
	sorted := make([]gatewayv1.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt < sorted[j].CreatedAt })

	r := pnlReport{Symbol: symbol, StartTime: startTime, NumTrades: len(sorted), CurrentPrice: currentPrice}
	for _, t := range sorted {
		qty := t.Volume
		if t.Side == gatewayv1.SideBuy {
			r.BuyVolume += qty
		} else {
			r.SellVolume += qty
			qty = -qty
		}
		r.addFill(qty, t.Price)

		switch {
		case t.Fee == 0:
		case t.FeeCurrency == "" || strings.HasSuffix(symbol, t.FeeCurrency):
			r.Fees += t.Fee
		case strings.HasPrefix(symbol, t.FeeCurrency):
			r.Fees += t.Fee * t.Price
		default:
			if r.OtherFees == nil {
				r.OtherFees = make(map[string]float64)
			}
			r.OtherFees[t.FeeCurrency] += t.Fee
		}
	}

	if r.Position != 0 {
		r.UnrealizedProfit = (currentPrice - r.AverageCost) * r.Position
	}
	r.NetProfit = r.Profit - r.Fees
	return r
}

// addFill applies a signed quantity at price to the position
func (r *pnlReport) addFill(qty, price float64) {
	pos := r.Position
	if pos == 0 || (pos > 0) == (qty > 0) {
		r.AverageCost = (r.AverageCost*abs(pos) + price*abs(qty)) / (abs(pos) + abs(qty))
		r.Position = pos + qty
		return
	}

	closed := min(abs(qty), abs(pos))
	if pos > 0 {
		r.Profit += (price - r.AverageCost) * closed
	} else {
		r.Profit += (r.AverageCost - price) * closed
	}
	r.Position = pos + qty
	switch {
	case r.Position == 0:
		r.AverageCost = 0
	case (r.Position > 0) != (pos > 0):
		r.AverageCost = price
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
