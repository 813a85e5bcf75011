// Command gatewayctl is a command line client for the trading gateway.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/logging"
	"github.com/ismaiel54/unified-trading-gateway/internal/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	gatewayAddr  string
	exchangeName string
	logLevel     string
	callTimeout  time.Duration
)

var RootCmd = &cobra.Command{
	Use:          "gatewayctl",
	Short:        "trading gateway client",
	SilenceUsage: true,
}

func init() {
	cfg := config.LoadConfig("gatewayctl")
	RootCmd.PersistentFlags().StringVar(&gatewayAddr, "addr", cfg.GatewayAddr, "gateway gRPC address")
	RootCmd.PersistentFlags().StringVar(&exchangeName, "exchange", "paper", "exchange session name")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "client log level")
	RootCmd.PersistentFlags().DurationVar(&callTimeout, "timeout", 10*time.Second, "timeout for unary calls")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect dials the gateway with a logger at the requested level
func connect() (*rpc.Client, *zap.Logger, error) {
	logger, err := logging.NewLogger("gatewayctl", logLevel)
	if err != nil {
		return nil, nil, err
	}
	client, err := rpc.Dial(gatewayAddr, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}

// withClient runs fn with a connected client and a call timeout
func withClient(fn func(ctx context.Context, client *rpc.Client) error) error {
	client, logger, err := connect()
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return fn(ctx, client)
}

// printJSON writes v as one line of JSON
func printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
