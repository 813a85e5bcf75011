// Command feed-producer publishes simulated normalized market data to Kafka
// for gateway exchanges configured with the kafka driver.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange/paper"
	"github.com/ismaiel54/unified-trading-gateway/internal/logging"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"go.uber.org/zap"
)

func main() {
	var (
		exchangeName = flag.String("exchange", "binance", "Exchange name the records are published under")
		symbols      = flag.String("symbols", "BTCUSDT,ETHUSDT", "Symbols to simulate")
		seed         = flag.Int64("seed", 42, "Random seed for deterministic prices")
		tick         = flag.Duration("tick", 500*time.Millisecond, "Interval between simulated ticks")
		duration     = flag.Duration("duration", 0, "Stop after this long, 0 runs until interrupted")
		brokers      = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		topic        = flag.String("topic", msg.TopicMarketData, "Topic to produce to")
	)
	flag.Parse()

	logger, err := logging.NewLogger("feed-producer", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	source := config.DefaultExchanges()[0]
	source.Name = *exchangeName
	source.Symbols = config.SplitList(*symbols)
	source.Seed = *seed
	source.TickInterval = *tick

	sim, err := paper.New(source, logger)
	if err != nil {
		logger.Fatal("failed to create simulator", zap.Error(err))
	}

	brokerList := config.SplitList(*brokers)
	logger.Info("starting feed producer",
		zap.String("exchange", *exchangeName),
		zap.Strings("symbols", source.Symbols),
		zap.Strings("brokers", brokerList),
		zap.String("topic", *topic),
	)

	producer, err := msg.NewProducer(msg.Config{Brokers: brokerList, ClientID: "feed-producer"}, logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var produced, failed atomic.Int64
	var wg sync.WaitGroup
	for _, symbol := range source.Symbols {
		for _, ch := range []gatewayv1.Channel{gatewayv1.ChannelBook, gatewayv1.ChannelTrade, gatewayv1.ChannelTicker} {
			key := gatewayv1.FeedKey{Exchange: source.Name, Channel: ch, Symbol: symbol}
			events, err := sim.OpenFeed(ctx, key)
			if err != nil {
				logger.Fatal("failed to open simulated feed", zap.String("feed", key.String()), zap.Error(err))
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range events {
					m, ok := toMarketData(*exchangeName, key, ev, time.Now())
					if !ok {
						continue
					}
					if err := producer.ProduceJSON(ctx, *topic, msg.MarketKey(m.Exchange, m.Symbol), m); err != nil {
						if ctx.Err() == nil {
							logger.Error("failed to produce market data", zap.String("feed", key.String()), zap.Error(err))
						}
						failed.Add(1)
						continue
					}
					produced.Add(1)
				}
			}()
		}
	}

	if err := sim.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("simulator stopped", zap.Error(err))
	}
	wg.Wait()

	logger.Info("feed producer completed",
		zap.Int64("produced", produced.Load()),
		zap.Int64("failed", failed.Load()),
	)

	fmt.Printf("\n=== Feed Producer Summary ===\n")
	fmt.Printf("Exchange: %s\n", *exchangeName)
	fmt.Printf("Produced: %d\n", produced.Load())
	fmt.Printf("Failed: %d\n", failed.Load())
	fmt.Printf("Topic: %s\n\n", *topic)
}
