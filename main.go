package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stop-trivia/controllers"
	"stop-trivia/db"
	"stop-trivia/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	releaseVersion = "1.0.0"
	timeout        = 10 * time.Second
)

func main() {
	godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).ExecuteContext(ctx))
}

// openStore returns the configured store and a func releasing it.
func openStore(ctx context.Context, cfg *Config) (db.Store, func(), error) {
	if cfg.memory {
		log.Println("Using in-memory session store")
		return db.NewMemoryStore(), func() {}, nil
	}

	client, err := db.Connect(ctx, db.Options{
		URI:      cfg.mongoURI,
		Database: cfg.mongoDatabase,
		TLS:      cfg.mongoTLS,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, nil, err
	}
	store := db.NewMongoStore(client, cfg.mongoDatabase)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Printf("Failed to create session indexes: %v", err)
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			log.Printf("Failed to disconnect from MongoDB: %v", err)
		}
	}
	return store, release, nil
}

func newRouter(cfg *Config, rc *controllers.RoundController) *gin.Engine {
	if !cfg.verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", controllers.PlayerHeader},
		AllowCredentials: true,
	}))

	routes.SessionRoutes(r, rc)
	routes.WebSocketRoutes(r, rc)
	return r
}

// Serve runs the gateway and the janitor until ctx is cancelled.
func Serve(ctx context.Context, cfg *Config) error {
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	gateway := controllers.NewGateway(store, cfg.clockSync)
	defer gateway.Shutdown()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, controllers.NewRoundController(gateway)),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Println("Server running on", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return controllers.RunJanitor(ctx, clockwork.NewRealClock(), store, cfg.sessionTTL, cfg.sweepInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// SweepOnce deletes abandoned sessions and exits, for cron-style runs.
func SweepOnce(ctx context.Context, cfg *Config) error {
	store, release, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	n, err := controllers.Sweep(ctx, store, time.Now(), cfg.sessionTTL)
	if err != nil {
		return err
	}
	log.Printf("Swept %d sessions", n)
	return nil
}
