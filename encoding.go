package irc2me

import (
	"golang.org/x/text/encoding/charmap"
)

// DecodeLegacyTrail re-decodes an IrcMsg.Trail that was read as raw bytes
// off a network still sending Latin-1/Windows-1252 rather than UTF-8.
// Grounded on kofany-go-ircevo's use of golang.org/x/text/encoding for
// the same purpose. IrcMsg fields are plain Go strings (§9 "bytes" maps
// to Go string, see DESIGN.md), so this is an explicit opt-in decode a
// caller applies per-server, not something ParseIrcMsg does implicitly —
// most networks are already UTF-8 and re-decoding those would corrupt
// them.
func DecodeLegacyTrail(trail string) (string, error) {
	out, err := charmap.Windows1252.NewDecoder().String(trail)
	if err != nil {
		return trail, &ProtocolError{Reason: "legacy charset decode: " + err.Error()}
	}
	return out, nil
}
