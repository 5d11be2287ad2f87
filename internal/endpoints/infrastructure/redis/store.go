package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultKey holds the endpoint document.
const DefaultKey = "labmonitor:fcm-tokens"

type document struct {
	Tokens []string `json:"tokens"`
}

// Store keeps the endpoint set as one JSON document under a single key.
type Store struct {
	client goredis.Cmdable
	key    string
}

// NewStore constructs a redis store.
func NewStore(client goredis.Cmdable, key string) (*Store, error) {
	if client == nil {
		return nil, errors.New("endpoint redis store: nil client")
	}
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}, nil
}

// Load reads the document, initialising it when absent.
func (s *Store) Load(ctx context.Context) ([]string, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		if err := s.Save(ctx, []string{}); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("endpoint redis store: get: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("endpoint redis store: decode: %w", err)
	}
	if doc.Tokens == nil {
		return []string{}, nil
	}
	return doc.Tokens, nil
}

// Save overwrites the document.
func (s *Store) Save(ctx context.Context, endpoints []string) error {
	if endpoints == nil {
		endpoints = []string{}
	}
	raw, err := json.Marshal(document{Tokens: endpoints})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("endpoint redis store: set: %w", err)
	}
	return nil
}
