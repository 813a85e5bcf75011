package main

import (
	"context"
	"errors"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/rpc"
	"github.com/spf13/cobra"
)

func init() {
	submitCmd.Flags().String("symbol", "BTCUSDT", "trading symbol")
	submitCmd.Flags().String("side", "BUY", "BUY or SELL")
	submitCmd.Flags().String("type", "LIMIT", "order type, e.g. MARKET, LIMIT, STOP_LIMIT, POST_ONLY")
	submitCmd.Flags().Float64("qty", 0, "order quantity")
	submitCmd.Flags().Float64("price", 0, "limit price")
	submitCmd.Flags().Float64("stop-price", 0, "stop trigger price")
	submitCmd.Flags().String("cid", "", "client order id")
	submitCmd.Flags().Int64("group-id", 0, "order group id")
	RootCmd.AddCommand(submitCmd)

	for _, c := range []*cobra.Command{cancelCmd, orderCmd} {
		c.Flags().String("id", "", "exchange order id")
		c.Flags().String("cid", "", "client order id")
		RootCmd.AddCommand(c)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "submit an order",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sideName, _ := flags.GetString("side")
		side, err := gatewayv1.ParseSide(sideName)
		if err != nil {
			return err
		}
		typeName, _ := flags.GetString("type")
		orderType, err := gatewayv1.ParseOrderType(typeName)
		if err != nil {
			return err
		}

		so := &gatewayv1.SubmitOrder{Exchange: exchangeName, Side: side, OrderType: orderType}
		so.Symbol, _ = flags.GetString("symbol")
		so.Quantity, _ = flags.GetFloat64("qty")
		so.Price, _ = flags.GetFloat64("price")
		so.StopPrice, _ = flags.GetFloat64("stop-price")
		so.ClientOrderID, _ = flags.GetString("cid")
		so.GroupID, _ = flags.GetInt64("group-id")

		return withClient(func(ctx context.Context, client *rpc.Client) error {
			order, err := client.Submit(ctx, so)
			return printResult(order, err)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "cancel an order by id or client order id",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, cid, err := orderRef(cmd)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, client *rpc.Client) error {
			order, err := client.Cancel(ctx, exchangeName, id, cid)
			return printResult(order, err)
		})
	},
}

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "show one order by id or client order id",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, cid, err := orderRef(cmd)
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, client *rpc.Client) error {
			order, err := client.Order(ctx, exchangeName, id, cid)
			return printResult(order, err)
		})
	},
}

func orderRef(cmd *cobra.Command) (string, string, error) {
	id, _ := cmd.Flags().GetString("id")
	cid, _ := cmd.Flags().GetString("cid")
	if id == "" && cid == "" {
		return "", "", errors.New("--id or --cid is required")
	}
	return id, cid, nil
}

// printResult prints the order even when a business error came with it,
// then returns the error
func printResult(order *gatewayv1.Order, err error) error {
	if order != nil {
		if perr := printJSON(order); perr != nil {
			return perr
		}
	}
	return err
}
