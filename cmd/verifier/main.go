// Command verifier consumes the gateway's order events and checks the order
// lifecycle invariants: executed volume never decreases, nothing follows a
// terminal state, and a client order id maps to a single order.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/logging"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <duration_seconds> [brokers]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s 30 127.0.0.1:9092\n", os.Args[0])
		os.Exit(1)
	}

	var durationSeconds int
	if _, err := fmt.Sscanf(os.Args[1], "%d", &durationSeconds); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid duration: %v\n", err)
		os.Exit(1)
	}

	brokers := "127.0.0.1:9092"
	if len(os.Args) >= 3 {
		brokers = os.Args[2]
	}

	logger, err := logging.NewLogger("verifier", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	brokerList := config.SplitList(brokers)
	logger.Info("starting verifier",
		zap.Int("duration_seconds", durationSeconds),
		zap.Strings("brokers", brokerList),
	)

	// A fresh group id per run so the whole topic is replayed
	group := fmt.Sprintf("verifier-%d", time.Now().UnixNano())
	consumer, err := msg.NewConsumer(msg.Config{Brokers: brokerList, ClientID: "verifier"}, group,
		[]string{msg.TopicOrderEvents}, logger,
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(durationSeconds)*time.Second)
	defer cancel()

	check := newChecker()
	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		var event msg.OrderEventMsg
		if err := json.Unmarshal(rec.Value, &event); err != nil {
			logger.Warn("failed to unmarshal event", zap.Error(err))
			return nil
		}
		check.observe(event)

		logger.Debug("consumed event",
			zap.String("order_id", event.Order.ID),
			zap.String("event_id", event.EventID),
			zap.String("status", event.Order.Status),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
		)
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("consumer error", zap.Error(err))
	}

	fmt.Println("\n=== Verification Results ===")
	fmt.Printf("Events consumed: %d\n", check.events)
	fmt.Printf("Redelivered events: %d\n", check.redelivery)
	fmt.Printf("Orders observed: %d\n", check.orders())
	fmt.Printf("Violations: %d\n", len(check.violations))

	if len(check.violations) > 0 {
		fmt.Println("\nViolations found:")
		for _, v := range check.violations {
			fmt.Printf("  %s\n", v)
		}
		fmt.Println("\n❌ VERIFICATION FAILED")
		os.Exit(1)
	}

	fmt.Println("\n✅ VERIFICATION PASSED")
}
