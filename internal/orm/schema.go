package orm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"myblog/internal/dbsession"
)

// Dialect выбирает особенности DDL конкретной СУБД.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var (
	// ErrNoPrimaryKey - в схеме нет первичного ключа
	ErrNoPrimaryKey = errors.New("orm: primary key not defined")
	// ErrMultiplePrimaryKeys - в схеме больше одного первичного ключа
	ErrMultiplePrimaryKeys = errors.New("orm: more than one primary key")
	// ErrDuplicateField - имя поля повторяется
	ErrDuplicateField = errors.New("orm: duplicate field")
)

// Trigger вызывается перед операцией и может изменить запись. Ошибка отменяет операцию.
type Trigger func(ctx context.Context, rec Record) error

// Schema описывает отображение записи на таблицу.
type Schema struct {
	name   string
	table  string
	fields []Field
	pk     int
	log    *slog.Logger

	preInsert Trigger
	preUpdate Trigger
	preDelete Trigger
}

// SchemaOption настраивает Schema.
type SchemaOption func(*Schema)

// Table задаёт имя таблицы (по умолчанию - имя схемы в нижнем регистре).
func Table(name string) SchemaOption { return func(s *Schema) { s.table = name } }

// PreInsert задаёт триггер перед вставкой.
func PreInsert(t Trigger) SchemaOption { return func(s *Schema) { s.preInsert = t } }

// PreUpdate задаёт триггер перед обновлением.
func PreUpdate(t Trigger) SchemaOption { return func(s *Schema) { s.preUpdate = t } }

// PreDelete задаёт триггер перед удалением.
func PreDelete(t Trigger) SchemaOption { return func(s *Schema) { s.preDelete = t } }

// WithLogger задаёт логгер для предупреждений о схеме.
func WithLogger(l *slog.Logger) SchemaOption {
	return func(s *Schema) {
		if l != nil {
			s.log = l
		}
	}
}

// Define проверяет поля и строит схему.
// Ровно одно поле должно быть первичным ключом; если ключ объявлен обновляемым
// или допускающим NULL, это исправляется с предупреждением.
func Define(name string, fields []Field, opts ...SchemaOption) (*Schema, error) {
	s := &Schema{
		name:  name,
		table: strings.ToLower(name),
		log:   slog.Default(),
		pk:    -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "orm"), slog.String("schema", name))

	seen := make(map[string]bool, len(fields))
	s.fields = make([]Field, len(fields))
	copy(s.fields, fields)
	for i := range s.fields {
		f := &s.fields[i]
		if seen[f.Name] {
			return nil, fmt.Errorf("%w %q in %s", ErrDuplicateField, f.Name, name)
		}
		seen[f.Name] = true

		if !f.PrimaryKey {
			continue
		}
		if s.pk >= 0 {
			return nil, fmt.Errorf("%w in %s", ErrMultiplePrimaryKeys, name)
		}
		if f.Updatable {
			s.log.Warn("change primary key to non-updatable", slog.String("field", f.Name))
			f.Updatable = false
		}
		if f.Nullable {
			s.log.Warn("change primary key to non-nullable", slog.String("field", f.Name))
			f.Nullable = false
		}
		s.pk = i
	}
	if s.pk < 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPrimaryKey, name)
	}
	return s, nil
}

// MustDefine как Define, но паникует при ошибке. Для схем, объявленных на уровне пакета.
func MustDefine(name string, fields []Field, opts ...SchemaOption) *Schema {
	s, err := Define(name, fields, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name возвращает имя схемы.
func (s *Schema) Name() string { return s.name }

// Table возвращает имя таблицы.
func (s *Schema) Table() string { return s.table }

// PrimaryKey возвращает поле первичного ключа.
func (s *Schema) PrimaryKey() Field { return s.fields[s.pk] }

// Fields возвращает поля в порядке объявления.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field ищет поле по имени.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// DDL генерирует CREATE TABLE IF NOT EXISTS для диалекта.
func (s *Schema) DDL(d Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", dbsession.QuoteIdent(s.table))
	for _, f := range s.fields {
		fmt.Fprintf(&b, "  %s %s", dbsession.QuoteIdent(f.Name), f.ColumnType(d))
		if !f.Nullable {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	fmt.Fprintf(&b, "  PRIMARY KEY (%s)\n)", dbsession.QuoteIdent(s.PrimaryKey().Name))
	return b.String()
}

// String возвращает описание схемы для отладки.
func (s *Schema) String() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%s(%s): %s", s.name, s.table, strings.Join(parts, " "))
}
