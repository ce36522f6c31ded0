package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/huegott/ai-spend-dashboard/test/mockprovider"
)

func main() {
	addr := flag.String("addr", ":8888", "Server address")
	apiKey := flag.String("api-key", "", "Require this bearer token (empty accepts any)")
	empty := flag.Bool("empty", false, "Start without seeded usage data")
	flag.Parse()

	state := mockprovider.NewState()
	if *empty {
		state = mockprovider.NewEmptyState()
	}
	server := mockprovider.NewServer(state, mockprovider.WithAPIKey(*apiKey))

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down mock provider...")
		os.Exit(0)
	}()

	log.Printf("Starting mock OpenAI provider on %s (set OPENAI_BASE_URL=http://localhost%s/v1)", *addr, *addr)
	if err := server.Run(*addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
