// cmd/server is the main entrypoint for one Chord-ring KV node.
//
// Configuration is entirely via flags so a single binary can start the
// first node of a ring or join an existing one.
//
// Example — first node of a ring:
//
//	./server --host 127.0.0.1 --port 8080
//
// Example — joining that ring:
//
//	./server --host 127.0.0.1 --port 8081 --bootstrap 127.0.0.1:8080
//	./server --host 127.0.0.1 --port 8082 --bootstrap 127.0.0.1:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"distributed-kvstore/internal/election"
	"distributed-kvstore/internal/flood"
	"distributed-kvstore/internal/kv"
	"distributed-kvstore/internal/metrics"
	"distributed-kvstore/internal/replication"
	"distributed-kvstore/internal/ring"
	"distributed-kvstore/internal/rpc"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	host := flag.String("host", "127.0.0.1", "Address to listen on and advertise to peers")
	port := flag.Int("port", 0, "Port to listen on (required)")
	bootstrap := flag.String("bootstrap", "", "host:port of an existing ring node to join (omit to start a new ring)")
	flag.Parse()

	if *port == 0 {
		log.Fatalf("FATAL: --port is required")
	}

	selfAddr := fmt.Sprintf("%s:%d", *host, *port)
	self := ring.Self(selfAddr)

	// ── Domain state ──────────────────────────────────────────────────────
	state := ring.NewState(self)
	store := kv.NewStore()
	clock := kv.NewClock()
	elections := election.NewManager()
	m := metrics.New(selfAddr)
	rpcClient := rpc.NewClient()

	// maintainer is wired in two steps: replication.Coordinator needs a
	// findSucc callback into the maintainer, and the maintainer needs the
	// coordinator as its anti-entropy syncer. The closure captures the
	// variable, not its value, so the later assignment is visible to it.
	var maintainer *ring.Maintainer
	findSucc := func(ctx context.Context, keyID uint32) ring.NodeRef {
		return maintainer.FindSuccessor(ctx, keyID)
	}
	coordinator := replication.NewCoordinator(self, findSucc, rpcClient, store, clock, elections, m)
	maintainer = ring.NewMaintainer(state, rpcClient, m, coordinator)

	searcher := flood.NewSearcher(selfAddr, state.Neighbors, func(key string) bool {
		_, ok := store.Get(key)
		return ok
	}, rpcClient, m)

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(rpc.Logger(), rpc.Recovery())

	server := rpc.NewServer(self, state, maintainer, store, coordinator, elections, searcher, m)
	server.Register(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":      selfAddr,
			"status":    "ok",
			"successor": state.Successor(),
		})
	})

	srv := &http.Server{
		Addr:         selfAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Join the ring, then start maintenance ──────────────────────────────
	if *bootstrap != "" {
		joinCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		maintainer.Join(joinCtx, *bootstrap)
		cancel()
	}
	maintainer.Start()

	go func() {
		log.Printf("node %s listening (id=%d)", selfAddr, self.ID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down node", selfAddr)
	maintainer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
