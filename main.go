package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/proofrail/proofrail-agent/pkg/agent"
	"github.com/proofrail/proofrail-agent/pkg/config"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create the agent
	a, err := agent.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Failed to close agent resources: %v", err)
		}
	}()

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		log.Println("Received termination signal, shutting down gracefully...")
		a.Stop()
		cancel()
	}()

	// Start the agent
	log.Printf("Starting agent %s on %s...", cfg.AgentAddress, cfg.Network.Name)
	if err := a.Start(ctx); err != nil {
		log.Printf("Agent exited: %v", err)
	}
}
