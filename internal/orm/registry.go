package orm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry хранит схемы приложения в порядке регистрации.
type Registry struct {
	mu      sync.RWMutex
	log     *slog.Logger
	order   []string
	schemas map[string]*Schema
}

// NewRegistry создаёт пустой реестр.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:     log.With(slog.String("component", "orm")),
		schemas: make(map[string]*Schema),
	}
}

// Register добавляет схемы. Повторное имя заменяет прежнюю схему с предупреждением.
func (r *Registry) Register(schemas ...*Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range schemas {
		if _, ok := r.schemas[s.Name()]; ok {
			r.log.Warn("redefine schema", slog.String("schema", s.Name()))
		} else {
			r.order = append(r.order, s.Name())
		}
		r.schemas[s.Name()] = s
	}
}

// Lookup возвращает схему по имени.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[name]
	return s, ok
}

// Schemas возвращает схемы в порядке регистрации.
func (r *Registry) Schemas() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// CreateAll создаёт таблицы всех схем одной транзакцией (CREATE TABLE IF NOT EXISTS).
func (r *Registry) CreateAll(ctx context.Context, db Executor, d Dialect) error {
	schemas := r.Schemas()
	return db.WithTransaction(ctx, func(ctx context.Context) error {
		for _, s := range schemas {
			if _, err := db.Execute(ctx, s.DDL(d)); err != nil {
				return fmt.Errorf("create table %s: %w", s.Table(), err)
			}
		}
		r.log.Info("schema ready", slog.Int("tables", len(schemas)), slog.String("dialect", string(d)))
		return nil
	})
}
