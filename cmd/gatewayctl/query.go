package main

import (
	"context"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	ordersCmd.Flags().String("symbol", "", "filter by symbol")
	ordersCmd.Flags().StringSlice("state", nil, "filter by status, repeatable")
	ordersCmd.Flags().Int64("group-id", 0, "filter by group id")
	addListFlags(ordersCmd.Flags())
	RootCmd.AddCommand(ordersCmd)

	tradesCmd.Flags().String("symbol", "", "filter by symbol")
	tradesCmd.Flags().Int64("before", 0, "only trades at or before this unix millisecond time")
	tradesCmd.Flags().Int64("from", 0, "range start, unix milliseconds")
	tradesCmd.Flags().Int64("to", 0, "range end, unix milliseconds")
	addListFlags(tradesCmd.Flags())
	RootCmd.AddCommand(tradesCmd)

	klinesCmd.Flags().String("symbol", "BTCUSDT", "trading symbol")
	klinesCmd.Flags().String("interval", "1m", "kline interval")
	klinesCmd.Flags().Int64("end", 0, "end time in unix milliseconds, 0 for now")
	klinesCmd.Flags().Int64("limit", 0, "number of klines")
	RootCmd.AddCommand(klinesCmd)
}

func addListFlags(fs *pflag.FlagSet) {
	fs.String("order-by", "", "sort key, e.g. created_at or -price")
	fs.Bool("paginate", false, "enable page/offset")
	fs.Int64("page", 0, "1-based page number")
	fs.Int64("limit", 0, "max rows")
	fs.Int64("offset", 0, "rows to skip")
}

type listFlags struct {
	orderBy  string
	paginate bool
	page     int64
	limit    int64
	offset   int64
}

func readListFlags(fs *pflag.FlagSet) listFlags {
	var lf listFlags
	lf.orderBy, _ = fs.GetString("order-by")
	lf.paginate, _ = fs.GetBool("paginate")
	lf.page, _ = fs.GetInt64("page")
	lf.limit, _ = fs.GetInt64("limit")
	lf.offset, _ = fs.GetInt64("offset")
	return lf
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "list orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		lf := readListFlags(cmd.Flags())
		req := &gatewayv1.QueryOrdersRequest{
			Exchange:   exchangeName,
			OrderBy:    lf.orderBy,
			Pagination: lf.paginate,
			Page:       lf.page,
			Limit:      lf.limit,
			Offset:     lf.offset,
		}
		req.Symbol, _ = cmd.Flags().GetString("symbol")
		req.State, _ = cmd.Flags().GetStringSlice("state")
		req.GroupID, _ = cmd.Flags().GetInt64("group-id")

		return withClient(func(ctx context.Context, client *rpc.Client) error {
			list, err := client.Orders(ctx, req)
			if err != nil {
				return err
			}
			for i := range list {
				if err := printJSON(list[i]); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var tradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "list trades",
	RunE: func(cmd *cobra.Command, args []string) error {
		lf := readListFlags(cmd.Flags())
		req := &gatewayv1.QueryTradesRequest{
			Exchange:   exchangeName,
			OrderBy:    lf.orderBy,
			Pagination: lf.paginate,
			Page:       lf.page,
			Limit:      lf.limit,
			Offset:     lf.offset,
		}
		req.Symbol, _ = cmd.Flags().GetString("symbol")
		req.Timestamp, _ = cmd.Flags().GetInt64("before")
		req.From, _ = cmd.Flags().GetInt64("from")
		req.To, _ = cmd.Flags().GetInt64("to")

		return withClient(func(ctx context.Context, client *rpc.Client) error {
			list, err := client.Trades(ctx, req)
			if err != nil {
				return err
			}
			for i := range list {
				if err := printJSON(list[i]); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var klinesCmd = &cobra.Command{
	Use:   "klines",
	Short: "query candles",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &gatewayv1.QueryKLinesRequest{Exchange: exchangeName}
		req.Symbol, _ = cmd.Flags().GetString("symbol")
		req.Interval, _ = cmd.Flags().GetString("interval")
		req.Timestamp, _ = cmd.Flags().GetInt64("end")
		req.Limit, _ = cmd.Flags().GetInt64("limit")

		return withClient(func(ctx context.Context, client *rpc.Client) error {
			klines, err := client.KLines(ctx, req)
			if err != nil {
				return err
			}
			for i := range klines {
				if err := printJSON(klines[i]); err != nil {
					return err
				}
			}
			return nil
		})
	},
}
