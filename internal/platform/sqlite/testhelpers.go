package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"myblog/internal/dbsession"
)

// TestDB представляет тестовую SQLite базу данных с удобными хелперами.
type TestDB struct {
	DB        *sqlx.DB
	Path      string // Путь к файлу БД (":memory:" для in-memory)
	Connector *Connector
}

// NewTestDBInMemory создает in-memory SQLite БД для тестов.
// Пул из одного соединения: сессии должны работать последовательно.
func NewTestDBInMemory(t *testing.T) *TestDB {
	t.Helper()

	db, err := NewInMemoryDB(context.Background())
	if err != nil {
		t.Fatalf("Failed to create in-memory test DB: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return &TestDB{DB: db, Path: ":memory:", Connector: NewConnector(db)}
}

// NewTestDBFile создает файловую SQLite БД во временной директории теста.
// Подходит для тестов, где несколько сессий держат соединения одновременно.
func NewTestDBFile(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.sqlite")
	db, err := NewDB(context.Background(), path)
	if err != nil {
		t.Fatalf("Failed to create file test DB: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return &TestDB{DB: db, Path: path, Connector: NewConnector(db)}
}

// NewSession создает сессию поверх тестовой БД и освобождает её после теста.
func (tdb *TestDB) NewSession(t *testing.T) *dbsession.Session {
	t.Helper()

	s := dbsession.New(tdb.Connector)
	t.Cleanup(func() {
		if err := s.Release(context.Background()); err != nil {
			t.Errorf("Failed to release session: %v", err)
		}
	})
	return s
}

// Exec выполняет SQL команду в обход сессий и проверяет отсутствие ошибок.
func (tdb *TestDB) Exec(t *testing.T, query string, args ...any) {
	t.Helper()

	if _, err := tdb.DB.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("Failed to execute query: %v", err)
	}
}

// MustSeedData вставляет тестовые данные и падает при ошибке.
func (tdb *TestDB) MustSeedData(t *testing.T, queries ...string) {
	t.Helper()

	for _, query := range queries {
		tdb.Exec(t, query)
	}
}

// CountRows возвращает количество закоммиченных строк в таблице.
func (tdb *TestDB) CountRows(t *testing.T, tableName string) int {
	t.Helper()

	var count int
	if err := tdb.DB.GetContext(context.Background(), &count, "SELECT COUNT(*) FROM "+tableName); err != nil {
		t.Fatalf("Failed to count rows in table %s: %v", tableName, err)
	}
	return count
}

// TableExists проверяет существование таблицы.
func (tdb *TestDB) TableExists(t *testing.T, tableName string) bool {
	t.Helper()

	var count int
	err := tdb.DB.GetContext(context.Background(), &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", tableName)
	if err != nil {
		t.Fatalf("Failed to check table existence: %v", err)
	}
	return count > 0
}
