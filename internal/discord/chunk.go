package discord

import "unicode/utf8"

// ChunkText splits s into pieces of at most maxLen bytes without splitting a
// character. Concatenating the pieces reproduces s exactly.
func ChunkText(s string, maxLen int) []string {
	var chunks []string
	start := 0
	for start < len(s) {
		end := len(s)
		if start+maxLen < len(s) {
			end = floorCharBoundary(s, start+maxLen)
			if end == start {
				// A rune wider than maxLen is emitted whole rather than
				// looping forever.
				_, size := utf8.DecodeRuneInString(s[start:])
				end = start + size
			}
		}
		chunks = append(chunks, s[start:end])
		start = end
	}
	return chunks
}

// floorCharBoundary returns the largest byte index <= n that does not split
// a UTF-8 sequence in s.
func floorCharBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
