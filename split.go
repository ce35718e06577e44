package irc2me

import (
	"bytes"
	"unicode/utf8"
)

// splitTrail breaks text into chunks that fit within maxLen bytes, cutting
// on the nearest preceding space when one exists so words aren't split
// mid-word, and otherwise on the nearest valid UTF-8 rune boundary.
// Grounded on lrstanley-girc's split.go splitPRIVMSG, generalized from one
// *Event per chunk to one plain string per chunk since here the caller (a
// Connection's Commands wrapper) builds the IrcMsg itself.
func splitTrail(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	b := []byte(text)
	for len(b) > maxLen {
		idx := bytes.LastIndexByte(b[:maxLen], ' ')
		if idx > 0 {
			idx++ // keep the boundary word attached to the next chunk
		} else {
			idx = lastRuneBoundary(b, maxLen)
		}
		chunks = append(chunks, string(b[:idx]))
		b = b[idx:]
	}
	chunks = append(chunks, string(b))
	return chunks
}

// lastRuneBoundary returns the largest index <= maxLen at which b can be cut
// without splitting a multi-byte UTF-8 rune in half. utf8.RuneStart, not
// utf8.ValidRune, is what identifies a cuttable byte: ValidRune checks a
// decoded rune *value*, which is satisfied even by the replacement rune a
// split multi-byte sequence decodes to, so it never actually finds a real
// boundary.
func lastRuneBoundary(b []byte, maxLen int) int {
	idx := maxLen
	for idx > 0 && !utf8.RuneStart(b[idx]) {
		idx--
	}
	if idx <= 0 {
		return maxLen
	}
	return idx
}

// maxTrailLen returns the largest trail a PRIVMSG/NOTICE to target can carry
// without the serialized line exceeding maxLineBytes, accounting for the
// command, target and the worst-case prefix the server might echo back
// (nick!user@host, per RFC 2812's ABNF), the way lrstanley-girc's
// maxPrefixLen estimates it — here with fixed conservative field lengths
// since the Connection doesn't track server-advertised NICKLEN/USERLEN/
// HOSTLEN (no CAP/ISUPPORT tracking in scope here).
func maxTrailLen(cmd, target string) int {
	const assumedNickLen = 30
	const assumedUserLen = 18
	const assumedHostLen = 63
	prefixLen := 1 + assumedNickLen + 1 + assumedUserLen + 1 + assumedHostLen + 1
	fixed := prefixLen + len(cmd) + 1 + len(target) + len(" :")
	return maxLineBytes - len("\r\n") - fixed
}
