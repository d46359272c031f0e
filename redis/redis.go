package redis

import (
	"context"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

var Ctx = context.Background()
var RedisClient *redis.Client

// InitRedis connects to addr. When Redis is unreachable RedisClient stays
// nil and callers run without the mirror.
func InitRedis(addr string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	_, err := client.Ping(Ctx).Result()
	if err != nil {
		glog.Warningf("[redis]not available at %s. Running without Redis.", addr)
		client.Close()
		RedisClient = nil
		return nil
	}

	glog.Infof("[redis]connected successfully.")
	RedisClient = client
	return client
}
