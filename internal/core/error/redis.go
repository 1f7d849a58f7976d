package errx

import (
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, redis.Nil) {
		return newKind(ErrNotFound, http.StatusNotFound, err, RedisNotFoundMessage)
	}

	return newKind(ErrUpstream, http.StatusBadGateway, err, RedisErrorMessage)
}
