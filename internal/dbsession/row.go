package dbsession

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Row - строка результата: отображение колонка → значение в порядке колонок запроса.
type Row struct {
	cols []string
	vals []any
}

// NewRow создаёт строку из колонок и значений одинаковой длины.
// Лишние значения или колонки отбрасываются.
func NewRow(cols []string, vals []any) Row {
	n := min(len(cols), len(vals))
	return Row{cols: cols[:n:n], vals: vals[:n:n]}
}

// Len возвращает количество колонок.
func (r Row) Len() int {
	return len(r.cols)
}

// Columns возвращает имена колонок в порядке запроса.
func (r Row) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Values возвращает значения в порядке колонок.
func (r Row) Values() []any {
	return append([]any(nil), r.vals...)
}

// Value возвращает значение i-й колонки.
func (r Row) Value(i int) any {
	return r.vals[i]
}

// Get возвращает значение колонки по имени. Сначала ищется точное совпадение,
// затем совпадение без учёта регистра.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i], true
		}
	}
	for i, c := range r.cols {
		if strings.EqualFold(c, name) {
			return r.vals[i], true
		}
	}
	return nil, false
}

// With возвращает копию строки с установленным значением колонки.
// Новая колонка добавляется в конец.
func (r Row) With(name string, v any) Row {
	cols := append([]string(nil), r.cols...)
	vals := append([]any(nil), r.vals...)
	for i, c := range cols {
		if c == name {
			vals[i] = v
			return Row{cols: cols, vals: vals}
		}
	}
	return Row{cols: append(cols, name), vals: append(vals, v)}
}

// Map возвращает строку в виде map. Порядок колонок теряется.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		m[c] = r.vals[i]
	}
	return m
}

// MarshalJSON кодирует строку как JSON-объект с ключами в порядке колонок.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v := r.vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
