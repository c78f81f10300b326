package relay

// chunkEntries packs rendered entries into messages no longer than limit
// characters, splitting only at entry boundaries. An entry that alone
// exceeds the limit is truncated rather than split across messages.
func chunkEntries(entries []string, limit int) []string {
	chunks := make([]string, 0, 1)
	current := ""

	for _, entry := range entries {
		if len(entry) > limit {
			entry = truncate(entry, limit)
		}
		if current != "" && len(current)+len(entry) > limit {
			chunks = append(chunks, current)
			current = ""
		}
		current += entry
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// trimCodeSpan shortens escaped code-span content. A cut can land right
// after an escape backslash, which would swallow the closing backtick;
// an odd run of trailing backslashes loses one more byte.
func trimCodeSpan(s string, limit int) string {
	s = truncate(s, limit)
	trailing := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		trailing++
	}
	if trailing%2 == 1 {
		s = s[:len(s)-1]
	}
	return s
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary.
	cut := limit
	for cut > 0 && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut]
}
