package orm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myblog/internal/platform/sqlite"
	"myblog/internal/shared"
)

var errTrigger = errors.New("trigger refused")

func noteSchema(t *testing.T, opts ...SchemaOption) *Schema {
	t.Helper()
	s, err := Define("Note", []Field{
		String("id", PrimaryKey(), NotNull(), ReadOnly(), DDL("varchar(50)"), DefaultFunc(func() any { return NextID() })),
		String("title", NotNull()),
		Int("views"),
		Bool("published"),
		Float("created_at", ReadOnly(), Default(1.5)),
	}, append([]SchemaOption{Table("notes")}, opts...)...)
	require.NoError(t, err)
	return s
}

func setup(t *testing.T, opts ...SchemaOption) (*Schema, *sqlite.TestDB, Executor) {
	t.Helper()
	s := noteSchema(t, opts...)
	tdb := sqlite.NewTestDBFile(t)
	db := tdb.NewSession(t)

	r := NewRegistry(nil)
	r.Register(s)
	require.NoError(t, r.CreateAll(context.Background(), db, SQLite))
	require.True(t, tdb.TableExists(t, "notes"))
	return s, tdb, db
}

func TestSchema_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	s, tdb, db := setup(t)

	rec := Record{"title": "first", "published": true}
	require.NoError(t, s.Insert(ctx, db, rec))

	// Значения по умолчанию записаны обратно в запись
	id := rec.String("id")
	assert.Len(t, id, 50)
	assert.Equal(t, int64(0), rec["views"])
	assert.Equal(t, 1.5, rec["created_at"])
	assert.Equal(t, 1, tdb.CountRows(t, "notes"))

	got, err := s.Get(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, "first", got.String("title"))
	assert.Equal(t, int64(0), got.Int64("views"))
	assert.True(t, got.Bool("published"))
	assert.InDelta(t, 1.5, got.Float64("created_at"), 1e-9)
}

func TestSchema_GetMissing(t *testing.T) {
	s, _, db := setup(t)

	_, err := s.Get(context.Background(), db, "nope")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestSchema_FindAndCount(t *testing.T) {
	ctx := context.Background()
	s, _, db := setup(t)

	for i, title := range []string{"a", "b", "c"} {
		require.NoError(t, s.Insert(ctx, db, Record{"id": string(rune('1' + i)), "title": title, "views": int64(i * 10)}))
	}

	all, err := s.FindAll(ctx, db)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].String("title"), all[1].String("title"), all[2].String("title")})

	popular, err := s.FindBy(ctx, db, "views >= ? ORDER BY views DESC", 10)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "c", popular[0].String("title"))

	none, err := s.FindBy(ctx, db, "views > ?", 100)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	first, found, err := s.FindFirst(ctx, db, "title = ?", "b")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", first.String("id"))

	_, found, err = s.FindFirst(ctx, db, "title = ?", "z")
	require.NoError(t, err)
	assert.False(t, found)

	n, err := s.CountAll(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.CountBy(ctx, db, "views < ?", 15)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSchema_Update(t *testing.T) {
	ctx := context.Background()
	s, _, db := setup(t)

	rec := Record{"id": "1", "title": "draft", "views": int64(3), "created_at": 9.0}
	require.NoError(t, s.Insert(ctx, db, rec))

	rec["title"] = "final"
	rec["created_at"] = 100.0
	delete(rec, "views")
	require.NoError(t, s.Update(ctx, db, rec))

	got, err := s.Get(ctx, db, "1")
	require.NoError(t, err)
	assert.Equal(t, "final", got.String("title"))
	// Пропущенное поле сброшено в значение по умолчанию
	assert.Equal(t, int64(0), got.Int64("views"))
	// Необновляемое поле не изменилось
	assert.InDelta(t, 9.0, got.Float64("created_at"), 1e-9)

	err = s.Update(ctx, db, Record{"id": "missing", "title": "x"})
	assert.True(t, shared.IsNotFound(err))
}

func TestSchema_Delete(t *testing.T) {
	ctx := context.Background()
	s, tdb, db := setup(t)

	rec := Record{"id": "1", "title": "gone"}
	require.NoError(t, s.Insert(ctx, db, rec))
	require.NoError(t, s.Delete(ctx, db, rec))
	assert.Equal(t, 0, tdb.CountRows(t, "notes"))

	assert.True(t, shared.IsNotFound(s.Delete(ctx, db, rec)))
}

func TestSchema_Triggers(t *testing.T) {
	ctx := context.Background()
	var deleted []string
	s, tdb, db := setup(t,
		PreInsert(func(_ context.Context, rec Record) error {
			if rec.String("title") == "" {
				return errTrigger
			}
			rec["views"] = int64(42)
			return nil
		}),
		PreUpdate(func(_ context.Context, rec Record) error {
			rec["title"] = rec.String("title") + " (edited)"
			return nil
		}),
		PreDelete(func(_ context.Context, rec Record) error {
			deleted = append(deleted, rec.String("id"))
			return nil
		}),
	)

	err := s.Insert(ctx, db, Record{"id": "0"})
	assert.ErrorIs(t, err, errTrigger)
	assert.Equal(t, 0, tdb.CountRows(t, "notes"))

	rec := Record{"id": "1", "title": "t"}
	require.NoError(t, s.Insert(ctx, db, rec))
	got, err := s.Get(ctx, db, "1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.Int64("views"))

	require.NoError(t, s.Update(ctx, db, got))
	got, err = s.Get(ctx, db, "1")
	require.NoError(t, err)
	assert.Equal(t, "t (edited)", got.String("title"))

	require.NoError(t, s.Delete(ctx, db, got))
	assert.Equal(t, []string{"1"}, deleted)
}

func TestSchema_OperationsShareTransaction(t *testing.T) {
	ctx := context.Background()
	s, tdb, db := setup(t)
	errAbort := errors.New("abort")

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.Insert(ctx, db, Record{"id": "1", "title": "a"}); err != nil {
			return err
		}
		if err := s.Insert(ctx, db, Record{"id": "2", "title": "b"}); err != nil {
			return err
		}
		n, err := s.CountAll(ctx, db)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return errAbort
	})

	assert.ErrorIs(t, err, errAbort)
	assert.Equal(t, 0, tdb.CountRows(t, "notes"))
}

func TestSchema_InsertDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s, tdb, db := setup(t)

	require.NoError(t, s.Insert(ctx, db, Record{"id": "1", "title": "a"}))
	err := s.Insert(ctx, db, Record{"id": "1", "title": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert notes")
	assert.Equal(t, 1, tdb.CountRows(t, "notes"))
}

func TestRecordConversions(t *testing.T) {
	r := Record{
		"s":  []byte("bytes"),
		"i":  "12",
		"f":  int64(3),
		"b":  int64(1),
		"bs": "true",
	}
	assert.Equal(t, "bytes", r.String("s"))
	assert.Equal(t, int64(12), r.Int64("i"))
	assert.InDelta(t, 3.0, r.Float64("f"), 1e-9)
	assert.True(t, r.Bool("b"))
	assert.True(t, r.Bool("bs"))
	assert.Equal(t, "", r.String("missing"))
	assert.Equal(t, int64(0), r.Int64("missing"))

	c := r.Clone()
	c["s"] = "changed"
	assert.Equal(t, "bytes", r.String("s"))
}
