// Command registrar publishes registration events for the leetstreak
// daemon to consume
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leettogether/leetstreak/internal/kafka"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	connect := func(brokers string) (*kafka.Producer, error) {
		return kafka.NewProducer(strings.Split(brokers, ","), logger)
	}

	if err := newRootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
