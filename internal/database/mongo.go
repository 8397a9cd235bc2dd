package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/support-desk/internal/config"
)

var ErrMongoNotReady = errors.New("mongo did not become ready")

// OpenMongo connects to MongoDB, retrying RetryAttempts times, and returns
// the configured database handle.
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.URL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize),
		)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
			err = client.Ping(pingCtx, nil)
			cancel()
			if err == nil {
				return client, client.Database(cfg.Database), nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, nil, errors.Join(ErrMongoNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, nil, errors.Join(ErrMongoNotReady, lastErr)
}
