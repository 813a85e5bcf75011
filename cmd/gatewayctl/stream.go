package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/spf13/cobra"
)

func init() {
	subscribeCmd.Flags().StringArray("sub", nil, "subscription as CHANNEL:SYMBOL[:DEPTH], repeatable")
	RootCmd.AddCommand(subscribeCmd)
	RootCmd.AddCommand(userCmd)
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "stream market data events",
	Example: "  gatewayctl subscribe --sub BOOK:BTCUSDT:10 --sub TRADE:BTCUSDT\n" +
		"  gatewayctl subscribe --exchange binance --sub TICKER:ETHUSDT",
	RunE: func(cmd *cobra.Command, args []string) error {
		raws, err := cmd.Flags().GetStringArray("sub")
		if err != nil {
			return err
		}
		if len(raws) == 0 {
			return errors.New("at least one --sub is required")
		}

		req := &gatewayv1.SubscribeRequest{}
		for _, raw := range raws {
			sub, err := parseSubscription(exchangeName, raw)
			if err != nil {
				return err
			}
			req.Subscriptions = append(req.Subscriptions, sub)
		}

		return stream(func(ctx context.Context) (gatewayv1.EventReceiver, func(), error) {
			client, _, err := connect()
			if err != nil {
				return nil, nil, err
			}
			recv, err := client.MarketData.Subscribe(ctx, req)
			return recv, func() { client.Close() }, err
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "stream user data events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stream(func(ctx context.Context) (gatewayv1.EventReceiver, func(), error) {
			client, _, err := connect()
			if err != nil {
				return nil, nil, err
			}
			recv, err := client.UserData.SubscribeUserData(ctx, &gatewayv1.Empty{})
			return recv, func() { client.Close() }, err
		})
	},
}

// stream prints events as JSON lines until the server ends the stream or
// the process is interrupted
func stream(open func(ctx context.Context) (gatewayv1.EventReceiver, func(), error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recv, closeFn, err := open(ctx)
	if closeFn != nil {
		defer closeFn()
	}
	if err != nil {
		return err
	}

	for {
		ev, err := recv.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		if err := printJSON(ev); err != nil {
			return err
		}
	}
}

// parseSubscription parses CHANNEL:SYMBOL[:DEPTH]
func parseSubscription(exchangeName, raw string) (gatewayv1.Subscription, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return gatewayv1.Subscription{}, fmt.Errorf("invalid subscription %q, want CHANNEL:SYMBOL[:DEPTH]", raw)
	}
	ch, err := gatewayv1.ParseChannel(parts[0])
	if err != nil {
		return gatewayv1.Subscription{}, err
	}
	sub := gatewayv1.Subscription{Exchange: exchangeName, Channel: ch, Symbol: strings.ToUpper(parts[1])}
	if len(parts) == 3 {
		depth, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return gatewayv1.Subscription{}, fmt.Errorf("invalid depth in %q: %w", raw, err)
		}
		sub.Depth = depth
	}
	return sub, nil
}
