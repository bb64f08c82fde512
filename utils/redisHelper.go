package utils

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

func CacheKey[T any](id any) string {
	return GetTypeName[T]() + ":" + fmt.Sprint(id)
}

// RetrieveRedis returns nil, nil on a miss or when Redis is not connected.
func RetrieveRedis[T any](ctx context.Context, id any) (*T, error) {
	var result T
	exists, err := config.GetRedisObject(ctx, CacheKey[T](id), &result)
	if err != nil || !exists {
		return nil, err
	}
	return &result, nil
}

func StoreRedis[T any](ctx context.Context, obj *T, id any) error {
	return config.SetRedisObject(ctx, CacheKey[T](id), obj, GetCacheLifespan())
}

func RemoveRedis[T any](ctx context.Context, id any) error {
	return config.RemoveRedisKey(ctx, CacheKey[T](id))
}
