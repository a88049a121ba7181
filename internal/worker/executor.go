package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Resolver ищет сущность по id среди данных этого воркера.
//
// Возвращает found=false, если сущности здесь нет.
// error — инфраструктурная ошибка, ответ считается промахом.
type Resolver interface {
	Resolve(ctx context.Context, id string) (json.RawMessage, bool, error)
}

// ResolverFunc — адаптер функции к Resolver.
type ResolverFunc func(ctx context.Context, id string) (json.RawMessage, bool, error)

// Resolve вызывает f.
func (f ResolverFunc) Resolve(ctx context.Context, id string) (json.RawMessage, bool, error) {
	return f(ctx, id)
}

// Registry — реестр резолверов по типу сущности.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[string]Resolver)}
}

// Register добавляет резолвер для типа сущности.
func (r *Registry) Register(kind string, resolver Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[kind] = resolver
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.resolvers[kind]
	return ok
}

// Get возвращает резолвер для типа сущности.
func (r *Registry) Get(kind string) (Resolver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resolver, ok := r.resolvers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityKind, kind)
	}
	return resolver, nil
}
