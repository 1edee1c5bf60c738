package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"space-invaders-server/internal/api"
	"space-invaders-server/internal/config"
	"space-invaders-server/internal/directory"
	"space-invaders-server/internal/room"
)

func main() {
	log.Println("🎮 ================================")
	log.Println("🎮  SPACE INVADERS - ROOM SERVER")
	log.Println("🎮 ================================")

	appConfig := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := room.NewMemoryStore()
	dir := directory.New(ctx, appConfig.Grid, appConfig.Timing, appConfig.Limits, store)
	dir.SetTickHook(api.RecordTick)

	debugCfg := api.DefaultObservabilityConfig()
	if os.Getenv("DISABLE_DEBUG_SERVER") != "true" {
		if err := api.StartDebugServer(debugCfg); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	go pollMetrics(ctx, dir)

	server := api.NewServer(dir)

	addr := ":" + strconv.Itoa(appConfig.Server.Port)
	go func() {
		log.Printf("🌐 API server on http://localhost%s", addr)
		if err := server.Start(addr); err != nil {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready, press Ctrl+C to stop")
	<-quit

	log.Println("🛑 Shutting down...")
	cancel()
	server.Stop()
	log.Println("👋 Goodbye")
}

// pollMetrics periodically pushes directory-wide gauges into the
// Prometheus registry; these are aggregates across every room and so
// don't fit naturally as a push from inside any single room's loop.
func pollMetrics(ctx context.Context, dir *directory.Directory) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			api.UpdateRoomsActive(dir.Count())
			total, dropped := dir.EventLogStats()
			api.UpdateEventLogStats(total, dropped)
		}
	}
}
