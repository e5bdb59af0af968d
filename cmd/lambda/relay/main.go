package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/bank-es/internal/config"
	"github.com/example/bank-es/internal/infrastructure/kafka"
	"github.com/example/bank-es/internal/infrastructure/kinesis"
	"github.com/example/bank-es/internal/infrastructure/nats"
)

// The relay forwards DynamoDB stream inserts, delivered through Kinesis, to
// the configured broker.
func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	publisher, err := newPublisher(cfg)
	if err != nil {
		logger.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}

	relay := kinesis.NewRelay(publisher, logger)
	logger.Info("relay initialized", "publisher", cfg.Publisher)
	lambda.Start(relay.Handle)
}

func newPublisher(cfg config.RelayConfig) (kinesis.Publisher, error) {
	if cfg.Publisher == config.PublisherNATS {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		return nats.NewPublisher(context.Background(), nc, cfg.NATSStream, cfg.NATSSubjectPrefix)
	}
	return kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic), nil
}
