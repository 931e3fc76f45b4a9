package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type storedResult struct {
	data      []byte
	expiresAt time.Time
}

// LocalGuard RequestGuard в памяти процесса, для одного экземпляра и тестов
type LocalGuard struct {
	mu        sync.Mutex
	held      map[string]struct{}
	results   map[string]storedResult
	resultTTL time.Duration
	now       func() time.Time
}

func NewLocalGuard(resultTTL time.Duration) *LocalGuard {
	return &LocalGuard{
		held:      make(map[string]struct{}),
		results:   make(map[string]storedResult),
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

func (g *LocalGuard) Acquire(ctx context.Context, key string) (func(), bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return nil, false, nil
	}
	g.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}
	return release, true, nil
}

func (g *LocalGuard) Load(ctx context.Context, key string, dest any) (bool, error) {
	g.mu.Lock()
	res, ok := g.results[key]
	if ok && g.resultTTL > 0 && g.now().After(res.expiresAt) {
		delete(g.results, key)
		ok = false
	}
	g.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(res.data, dest); err != nil {
		return false, fmt.Errorf("decode result: %w", err)
	}
	return true, nil
}

func (g *LocalGuard) Store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	g.mu.Lock()
	g.results[key] = storedResult{data: data, expiresAt: g.now().Add(g.resultTTL)}
	g.mu.Unlock()
	return nil
}
