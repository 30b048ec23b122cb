package telegram

import (
	"strings"
	"unicode/utf8"
)

// Telegram rejects messages over 4096 characters; keep some headroom.
const telegramTextLimit = 4000

// splitTelegramText packs whole lines into chunks of at most limit runes.
// A single line longer than limit is cut hard. Blank chunks are dropped.
func splitTelegramText(s string, limit int) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}

	var (
		out  []string
		cur  strings.Builder
		size int
	)
	flush := func() {
		if chunk := strings.TrimRight(cur.String(), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		cur.Reset()
		size = 0
	}

	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		for _, piece := range cutRunes(line, limit) {
			n := utf8.RuneCountInString(piece)
			if size > 0 && size+1+n > limit {
				flush()
			}
			if size > 0 {
				cur.WriteByte('\n')
				size++
			}
			cur.WriteString(piece)
			size += n
		}
	}
	flush()
	return out
}

// cutRunes splits s into pieces of at most n runes.
func cutRunes(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	rs := []rune(s)
	pieces := make([]string, 0, len(rs)/n+1)
	for len(rs) > n {
		pieces = append(pieces, string(rs[:n]))
		rs = rs[n:]
	}
	return append(pieces, string(rs))
}
