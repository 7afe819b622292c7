package orm

import "fmt"

// Kind - тип поля, определяющий DDL и значение по умолчанию.
type Kind int

const (
	KindString Kind = iota + 1
	KindInt
	KindFloat
	KindBool
	KindText
	KindBlob
	KindVersion
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBool:
		return "Bool"
	case KindText:
		return "Text"
	case KindBlob:
		return "Blob"
	case KindVersion:
		return "Version"
	default:
		return "Unknown"
	}
}

// Field описывает колонку таблицы.
type Field struct {
	Name       string
	Kind       Kind
	PrimaryKey bool
	Nullable   bool
	Updatable  bool
	Insertable bool

	ddl         string
	customDDL   bool
	def         any
	defaultFunc func() any
}

// FieldOption настраивает Field.
type FieldOption func(*Field)

// PrimaryKey помечает поле первичным ключом. Ключ всегда NOT NULL и не обновляется.
func PrimaryKey() FieldOption { return func(f *Field) { f.PrimaryKey = true } }

// NotNull запрещает NULL.
func NotNull() FieldOption { return func(f *Field) { f.Nullable = false } }

// ReadOnly исключает поле из UPDATE.
func ReadOnly() FieldOption { return func(f *Field) { f.Updatable = false } }

// NoInsert исключает поле из INSERT (например, значение заполняет БД).
func NoInsert() FieldOption { return func(f *Field) { f.Insertable = false } }

// Default задаёт значение по умолчанию.
func Default(v any) FieldOption {
	return func(f *Field) { f.def, f.defaultFunc = v, nil }
}

// DefaultFunc задаёт функцию, вычисляющую значение по умолчанию при каждой вставке.
func DefaultFunc(fn func() any) FieldOption {
	return func(f *Field) { f.defaultFunc = fn }
}

// DDL переопределяет тип колонки.
func DDL(ddl string) FieldOption {
	return func(f *Field) { f.ddl, f.customDDL = ddl, true }
}

// postgresTypes - типы по умолчанию, которые в PostgreSQL называются иначе.
var postgresTypes = map[Kind]string{
	KindFloat: "double precision",
	KindBlob:  "bytea",
}

func newField(name string, kind Kind, ddl string, def any, opts []FieldOption) Field {
	f := Field{
		Name:       name,
		Kind:       kind,
		Nullable:   true,
		Updatable:  true,
		Insertable: true,
		ddl:        ddl,
		def:        def,
	}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// String - строковое поле, varchar(255), по умолчанию "".
func String(name string, opts ...FieldOption) Field {
	return newField(name, KindString, "varchar(255)", "", opts)
}

// Int - целое поле, bigint, по умолчанию 0.
func Int(name string, opts ...FieldOption) Field {
	return newField(name, KindInt, "bigint", int64(0), opts)
}

// Float - вещественное поле, real, по умолчанию 0.0.
func Float(name string, opts ...FieldOption) Field {
	return newField(name, KindFloat, "real", 0.0, opts)
}

// Bool - логическое поле, bool, по умолчанию false.
func Bool(name string, opts ...FieldOption) Field {
	return newField(name, KindBool, "bool", false, opts)
}

// Text - текстовое поле без ограничения длины, по умолчанию "".
func Text(name string, opts ...FieldOption) Field {
	return newField(name, KindText, "text", "", opts)
}

// Blob - двоичное поле, по умолчанию пустой срез.
func Blob(name string, opts ...FieldOption) Field {
	return newField(name, KindBlob, "blob", []byte{}, opts)
}

// Version - счётчик версии записи, bigint, по умолчанию 0.
func Version(name string) Field {
	return newField(name, KindVersion, "bigint", int64(0), nil)
}

// DefaultValue возвращает значение по умолчанию, вычисляя его при необходимости.
func (f Field) DefaultValue() any {
	if f.defaultFunc != nil {
		return f.defaultFunc()
	}
	return f.def
}

// ColumnType возвращает тип колонки для диалекта.
func (f Field) ColumnType(d Dialect) string {
	if f.customDDL {
		return f.ddl
	}
	if t, ok := postgresTypes[f.Kind]; ok && d == Postgres {
		return t
	}
	return f.ddl
}

func (f Field) String() string {
	flags := ""
	if f.Nullable {
		flags += "N"
	}
	if f.Updatable {
		flags += "U"
	}
	if f.Insertable {
		flags += "I"
	}
	return fmt.Sprintf("<%sField:%s,%s,default(%v),%s>", f.Kind, f.Name, f.ColumnType(SQLite), f.def, flags)
}
