package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/socialgraph/cmd/server"
	"example.com/socialgraph/cmd/worker"
	"example.com/socialgraph/internal/broker"
	config "example.com/socialgraph/internal/init"
	"example.com/socialgraph/internal/store"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode

	// Initialize Cassandra store connection
	st, err := store.New()
	if err != nil {
		log.Fatalf("Cassandra connection failed: %v", err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := broker.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	var eventWriter broker.EventWriter
	var eventReader broker.EventReader

	// Initialize Kafka writer for server mode
	if mode == "server" {
		eventWriter, err = broker.NewEventWriter(kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		defer eventWriter.Close()
	} else {
		// Initialize Kafka reader for worker mode
		eventReader = broker.NewEventReader(kafkaCfg)
		defer eventReader.Close()
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run application depending on selected mode
	switch mode {
	case "server":
		// Start the API server that publishes social events to Kafka
		server.Run(ctx, st, eventWriter, cfg)
	case "worker":
		// Start the worker that turns social events into notifications
		w := worker.New(st, eventReader, 0, 0)
		w.Run(ctx)
	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}
