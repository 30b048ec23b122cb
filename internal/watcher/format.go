package watcher

import (
	"fmt"
	"strings"
	"time"
)

// FormatStatus renders a snapshot for the /status chat command.
func FormatStatus(s Snapshot) string {
	var b strings.Builder
	if s.Last != nil {
		fmt.Fprintf(&b, "Работа: %s\nСтатус: %s\n", s.Last.HomeworkName, s.Last.Status.Verdict())
	} else {
		b.WriteString("Изменений статуса пока не было.\n")
	}
	fmt.Fprintf(&b, "Проверяю с: %s\n", time.Unix(s.Cursor, 0).Format(time.DateTime))
	fmt.Fprintf(&b, "Расписание: %s\n", s.Schedule)
	fmt.Fprintf(&b, "Циклов: %d, изменений: %d, ошибок: %d", s.Cycles, s.Changes, s.Failures)
	if !s.NextRunAt.IsZero() {
		fmt.Fprintf(&b, "\nСледующая проверка: %s", s.NextRunAt.Format(time.DateTime))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "\nПоследняя ошибка: %s", s.LastError)
	}
	return b.String()
}
