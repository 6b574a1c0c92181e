package poi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"avm/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CachedProvider serves repeated nearby searches from redis
type CachedProvider struct {
	next   Provider
	client redis.Cmdable
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCachedProvider(next Provider, client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *CachedProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedProvider{next: next, client: client, ttl: ttl, logger: logger}
}

// NewRedisClient connects to redis at addr
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func cacheKey(lat, lng float64, radiusMeters int, placeType string) string {
	return fmt.Sprintf("poi:%.4f:%.4f:%d:%s", lat, lng, radiusMeters, placeType)
}

func (c *CachedProvider) NearbySearch(ctx context.Context, lat, lng float64, radiusMeters int, placeType string) ([]models.Place, error) {
	key := cacheKey(lat, lng, radiusMeters, placeType)

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		var places []models.Place
		if err := json.Unmarshal([]byte(val), &places); err == nil {
			return places, nil
		}
		c.logger.WithField("key", key).Warn("Discarding unreadable cached places")
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).Warn("POI cache read failed")
	}

	places, err := c.next.NearbySearch(ctx, lat, lng, radiusMeters, placeType)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(places)
	if err != nil {
		return places, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("POI cache write failed")
	}

	return places, nil
}
