package db

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

type NewMongoClientParams struct {
	URI            string
	ConnectTimeout time.Duration
	TracingEnabled bool
}

// NewMongoClient connects to mongo and pings the primary.
func NewMongoClient(ctx context.Context, params NewMongoClientParams) (*mongo.Client, error) {
	connectTimeout := params.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}

	journal := true
	opts := options.Client().
		ApplyURI(params.URI).
		SetConnectTimeout(connectTimeout).
		SetWriteConcern(&writeconcern.WriteConcern{W: 1, Journal: &journal})
	if params.TracingEnabled {
		opts.SetMonitor(otelmongo.NewMonitor())
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		if discErr := client.Disconnect(context.Background()); discErr != nil {
			log.Warnf("disconnect mongo client after failed ping: %s", discErr)
		}
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Debugf("mongo client connected")
	return client, nil
}
