package backend

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/die-net/poolsocks/internal/config"
)

// NewResolver builds the resolver selected by cfg.Resolver. Stores that are
// unreachable at startup are logged, not fatal: both database/sql and
// go-redis reconnect on demand, and each session reports its own failure.
func NewResolver(ctx context.Context, cfg config.Config, log *logrus.Entry) (ResolverCloser, error) {
	timeout := time.Duration(cfg.BackendTimeout)
	log = log.WithField("resolver", cfg.Resolver)

	switch cfg.Resolver {
	case config.ResolverHTTP:
		log.WithField("url", cfg.ResolverURL).Info("resolving destinations over http")
		return NewHTTPResolver(cfg.ResolverURL, cfg.Secret, timeout), nil

	case config.ResolverMySQL:
		r, err := OpenMySQL(cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := r.Ping(pctx); err != nil {
			log.WithError(err).Warn("mysql unreachable, will retry per session")
		} else {
			log.Info("resolving destinations from mysql")
		}
		return r, nil

	case config.ResolverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		})
		r := NewRedisResolver(client, cfg.RedisKeyPrefix)
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := r.Ping(pctx); err != nil {
			log.WithError(err).Warn("redis unreachable, will retry per session")
		} else {
			log.WithField("addr", cfg.RedisAddr).Info("resolving destinations from redis")
		}
		return r, nil

	default:
		return nil, errors.Errorf("unknown resolver %q", cfg.Resolver)
	}
}
