package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Options configures the MongoDB connection.
type Options struct {
	URI      string
	Database string
	TLS      bool
	Timeout  time.Duration
}

// Connect dials MongoDB and pings it before returning the client.
func Connect(ctx context.Context, opts Options) (*mongo.Client, error) {
	if opts.URI == "" {
		return nil, fmt.Errorf("mongodb uri not set")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(opts.URI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetTimeout(timeout).
		SetConnectTimeout(timeout)

	if opts.TLS {
		// Atlas clusters verify against the system roots.
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, timeout/2)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	log.Println("Connected to MongoDB!")
	return client, nil
}
