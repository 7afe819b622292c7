package orm

import (
	"math"
	"strconv"

	"myblog/internal/dbsession"
)

// Record - значения одной записи по именам полей.
type Record map[string]any

func recordFromRow(row dbsession.Row) Record {
	return Record(row.Map())
}

// String возвращает строковое значение; []byte преобразуется в строку.
func (r Record) String(name string) string {
	switch v := r[name].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// Int64 возвращает целое значение или 0, если поля нет или его значение
// не приводится к целому. Отличить 0 от ошибки позволяет LookupInt64.
func (r Record) Int64(name string) int64 {
	n, _ := r.LookupInt64(name)
	return n
}

// LookupInt64 приводит значение поля к int64. Драйверы отдают числа по-разному,
// поэтому поддерживаются все целые, float без дробной части и десятичные строки.
// ok=false, если поля нет или значение не целое.
func (r Record) LookupInt64(name string) (n int64, ok bool) {
	switch v := r[name].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return floatToInt(v)
	case float32:
		return floatToInt(float64(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Float64 возвращает вещественное значение или 0, если поля нет
// или значение не число. См. LookupFloat64.
func (r Record) Float64(name string) float64 {
	f, _ := r.LookupFloat64(name)
	return f
}

// LookupFloat64 приводит значение поля к float64.
func (r Record) LookupFloat64(name string) (f float64, ok bool) {
	switch v := r[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool возвращает логическое значение или false, если поля нет
// или значение не распознано. См. LookupBool.
func (r Record) Bool(name string) bool {
	b, _ := r.LookupBool(name)
	return b
}

// LookupBool приводит значение поля к bool. SQLite хранит bool как 0/1.
func (r Record) LookupBool(name string) (b bool, ok bool) {
	switch v := r[name].(type) {
	case bool:
		return v, true
	case int64:
		return v != 0, true
	case int:
		return v != 0, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// Clone возвращает неглубокую копию записи.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
