package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"elevate/portal/internal/model"
)

// Persister is the durable copy of the session behind the store. The copy
// exists only to skip a login before first use; it is always provisional
// until confirmed via Hydrate.
type Persister interface {
	Load(ctx context.Context) (*model.Session, error)
	Save(ctx context.Context, sess *model.Session) error
	Clear(ctx context.Context) error
}

// FilePersister keeps the session as a JSON file, the default for a
// single-machine install.
type FilePersister struct {
	Path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{Path: path}
}

func (p *FilePersister) Load(_ context.Context) (*model.Session, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// A corrupt session file is treated as absent, not fatal.
		return nil, nil
	}
	return &sess, nil
}

func (p *FilePersister) Save(_ context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o700); err != nil {
		return err
	}
	tmp := p.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, p.Path)
}

func (p *FilePersister) Clear(_ context.Context) error {
	err := os.Remove(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// RedisPersister keeps the session in Redis, keyed per install, for setups
// where the agent runs alongside other portal tooling.
type RedisPersister struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisPersister(client *redis.Client, clientID string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{
		client: client,
		key:    fmt.Sprintf("elevate:session:%s", clientID),
		ttl:    ttl,
	}
}

func (p *RedisPersister) Load(ctx context.Context) (*model.Session, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, nil
	}
	return &sess, nil
}

func (p *RedisPersister) Save(ctx context.Context, sess *model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, p.key, data, p.ttl).Err()
}

func (p *RedisPersister) Clear(ctx context.Context) error {
	return p.client.Del(ctx, p.key).Err()
}
