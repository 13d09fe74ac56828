package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-authentica/models"

	"github.com/redis/go-redis/v9"
)

var ErrNotificationNotFound = errors.New("no nafath result recorded")

// Should be safe to use concurrently
type NotificationStorage interface {
	// Records the latest result for the national id in the result.
	// An existing result for the same id is overwritten.
	StoreNotification(ctx context.Context, result models.NafathResult) error

	// Returns the latest result for the national id, or an error
	// wrapping ErrNotificationNotFound when there is none.
	RetrieveNotification(ctx context.Context, nationalId string) (models.NafathResult, error)
}

const ResultTTL time.Duration = 24 * time.Hour

// ------------------------------------------------------------------------------

type InMemoryNotificationStorage struct {
	results map[string]models.NafathResult
	mutex   sync.RWMutex
}

func NewInMemoryNotificationStorage() *InMemoryNotificationStorage {
	return &InMemoryNotificationStorage{
		results: make(map[string]models.NafathResult),
	}
}

func (s *InMemoryNotificationStorage) StoreNotification(_ context.Context, result models.NafathResult) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.results[result.NationalId] = result
	return nil
}

func (s *InMemoryNotificationStorage) RetrieveNotification(_ context.Context, nationalId string) (models.NafathResult, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result, ok := s.results[nationalId]
	if !ok {
		return models.NafathResult{}, fmt.Errorf("%w for %s", ErrNotificationNotFound, nationalId)
	}
	return result, nil
}

// ------------------------------------------------------------------------------

type RedisNotificationStorage struct {
	client    *redis.Client
	namespace string
}

func NewRedisNotificationStorage(client *redis.Client, namespace string) *RedisNotificationStorage {
	return &RedisNotificationStorage{client: client, namespace: namespace}
}

func createKey(namespace, nationalId string) string {
	return fmt.Sprintf("%s:nafath:%s", namespace, nationalId)
}

func (s *RedisNotificationStorage) StoreNotification(ctx context.Context, result models.NafathResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal nafath result: %w", err)
	}
	return s.client.Set(ctx, createKey(s.namespace, result.NationalId), payload, ResultTTL).Err()
}

func (s *RedisNotificationStorage) RetrieveNotification(ctx context.Context, nationalId string) (models.NafathResult, error) {
	payload, err := s.client.Get(ctx, createKey(s.namespace, nationalId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NafathResult{}, fmt.Errorf("%w for %s", ErrNotificationNotFound, nationalId)
	}
	if err != nil {
		return models.NafathResult{}, err
	}

	var result models.NafathResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return models.NafathResult{}, fmt.Errorf("failed to decode nafath result: %w", err)
	}
	return result, nil
}
