package main

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/52poke/voicenotes/internal/cache"
	"github.com/52poke/voicenotes/internal/config"
	"github.com/52poke/voicenotes/internal/lock"
	"github.com/52poke/voicenotes/internal/notes"
	"github.com/52poke/voicenotes/internal/origin"
	"github.com/52poke/voicenotes/internal/push"
	"github.com/52poke/voicenotes/internal/worker"
)

// deps holds everything built from the config; close releases it.
type deps struct {
	storage cache.Storage
	locker  lock.Locker
	redis   *redis.Client
	closers []io.Closer
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i].Close()
	}
}

func (d *deps) redisClient(cfg config.Config) *redis.Client {
	if d.redis == nil && cfg.RedisAddr != "" {
		d.redis = lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		d.closers = append(d.closers, d.redis)
	}
	return d.redis
}

// notifier publishes on Redis when one is configured and logs otherwise.
func (d *deps) notifier(cfg config.Config) push.Notifier {
	if rc := d.redisClient(cfg); rc != nil {
		return push.NewRedisNotifier(rc, cfg.PushChannel)
	}
	return push.LogNotifier{}
}

func buildDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}
	switch cfg.Backend {
	case config.BackendMemory:
		d.storage = cache.NewMemory()
	case config.BackendSQLite:
		db, err := cache.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db)
		d.storage = db
	case config.BackendRedis:
		d.storage = cache.NewRedis(d.redisClient(cfg), cfg.RedisPrefix)
	case config.BackendS3:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.storage = cache.NewS3(cfg.S3Bucket, cfg.S3Prefix, client)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if rc := d.redisClient(cfg); rc != nil {
		d.locker = lock.NewRedis(rc)
	} else {
		d.locker = lock.NewLocal()
	}
	return d, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
	}), nil
}

func newWorker(cfg config.Config, d *deps) (*worker.Worker, error) {
	return worker.New(worker.Options{
		Version:     cfg.CacheVersion,
		Scope:       cfg.OriginURL,
		Manifest:    cfg.Manifest,
		Fallback:    cfg.FallbackPath,
		LockTTL:     cfg.LockTTL(),
		MaxLockWait: cfg.MaxLockWait(),
	}, d.storage, origin.NewClient(cfg.FetchTimeout()), d.locker)
}

func openNotes(cfg config.Config, d *deps) (*notes.Service, error) {
	switch cfg.NotesBackend {
	case config.BackendMemory:
		return notes.NewService(notes.NewMemoryKV()), nil
	case config.BackendSQLite:
		kv, err := notes.NewSQLiteKV(cfg.NotesDBPath)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, kv)
		return notes.NewService(kv), nil
	case config.BackendRedis:
		rc := d.redisClient(cfg)
		if rc == nil {
			return nil, fmt.Errorf("VOICENOTES_REDIS_ADDR is required for redis notes")
		}
		return notes.NewService(notes.NewRedisKV(rc, cfg.RedisPrefix+":")), nil
	default:
		return nil, fmt.Errorf("unsupported notes backend %q", cfg.NotesBackend)
	}
}
