package orm

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NextID генерирует строковый ключ длиной 50 символов: миллисекунды времени (15 цифр),
// случайный UUID без дефисов и суффикс "000". Ключи одного процесса сортируются по времени.
func NextID() string {
	return nextID(time.Now())
}

func nextID(now time.Time) string {
	return fmt.Sprintf("%015d%s000", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", ""))
}
