package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shrek82/jormx/model"
)

// ArtifactStore publishes generated proxy sources. Publish reports whether
// the stored content changed; identical content is left untouched.
type ArtifactStore interface {
	Publish(ctx context.Context, name string, content []byte) (bool, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// FileStore keeps artifacts as files in one directory. Files are written
// under a temporary name and renamed into place, so readers never see a
// partial file.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: proxy directory is empty", model.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o775); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", model.ErrProxyGeneration, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Publish(_ context.Context, name string, content []byte) (bool, error) {
	path := filepath.Join(s.dir, name)
	if old, err := os.ReadFile(path); err == nil && xxhash.Sum64(old) == xxhash.Sum64(content) {
		return false, nil
	}

	tmp := filepath.Join(s.dir, "."+name+"."+uuid.NewString())
	if err := os.WriteFile(tmp, content, 0o664); err != nil {
		return false, fmt.Errorf("%w: write %s: %v", model.ErrProxyGeneration, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("%w: rename %s: %v", model.ErrProxyGeneration, path, err)
	}
	return true, nil
}

func (s *FileStore) Fetch(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, name))
}

func (s *FileStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".go") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// RedisStore shares artifacts across a deployment. Each artifact is a string
// key under prefix; a set at prefix+"index" lists their names.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Publish(ctx context.Context, name string, content []byte) (bool, error) {
	old, err := s.client.Get(ctx, s.key(name)).Bytes()
	switch {
	case err == nil && xxhash.Sum64(old) == xxhash.Sum64(content):
		return false, nil
	case err != nil && !errors.Is(err, redis.Nil):
		return false, fmt.Errorf("%w: redis get %s: %v", model.ErrProxyGeneration, name, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(name), content, 0)
		pipe.SAdd(ctx, s.prefix+"index", name)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: redis publish %s: %v", model.ErrProxyGeneration, name, err)
	}
	return true, nil
}

func (s *RedisStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("artifact %s: %w", name, os.ErrNotExist)
	}
	return b, err
}

func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.prefix+"index").Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
