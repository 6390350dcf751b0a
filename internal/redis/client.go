package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientOptions selects between a single node and a cluster
type ClientOptions struct {
	Addrs       []string
	Password    string
	ClusterMode bool
	PoolSize    int
	MaxRetries  int
}

// NewUniversalClient creates a Redis client with cluster support
func NewUniversalClient(opts ClientOptions) redis.UniversalClient {
	if opts.ClusterMode {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        opts.Addrs,
			Password:     opts.Password,
			MaxRetries:   opts.MaxRetries,
			PoolSize:     opts.PoolSize,
			MinIdleConns: 5,
			PoolTimeout:  30 * time.Second,
			MaxRedirects: 8,
			ReadOnly:     false,
			// Route to lowest latency node
			RouteByLatency: true,
		})
	}

	addr := "localhost:6379"
	if len(opts.Addrs) > 0 {
		addr = opts.Addrs[0]
	}
	return redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   opts.Password,
		DB:         0, // DB is not supported in cluster mode
		PoolSize:   opts.PoolSize,
		MaxRetries: opts.MaxRetries,
	})
}
