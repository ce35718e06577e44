package irc2me

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	tagPrefix    byte = 0x3A // ':' -- prefix or trailing-param marker.
	tagUserSep   byte = 0x21 // '!' -- nick/user separator in a hostmask.
	tagHostSep   byte = 0x40 // '@' -- user/host separator in a hostmask.
	tagSpace     byte = 0x20
	maxLineBytes      = 512 // RFC 2812 2.3: 512 bytes including CRLF.
)

// UserInfo is the nick!user@host form of a message prefix. Host and User
// may be empty; Nick is always set when a UserInfo is present.
type UserInfo struct {
	Nick string
	User string
	Host string
}

// String renders the hostmask the way it appeared on the wire.
func (u UserInfo) String() string {
	var b strings.Builder
	b.WriteString(u.Nick)
	if u.User != "" {
		b.WriteByte(tagUserSep)
		b.WriteString(u.User)
	}
	if u.Host != "" {
		b.WriteByte(tagHostSep)
		b.WriteString(u.Host)
	}
	return b.String()
}

// IsHostmask reports whether this prefix looks like a client, rather than
// a bare server name.
func (u UserInfo) IsHostmask() bool {
	return u.User != "" || u.Host != ""
}

// parsePrefix splits a raw prefix token into a UserInfo. A prefix with
// neither '!' nor '@' is still returned as a UserInfo with only Nick set;
// callers that need to tell "server name" from "nick with no user/host"
// apart use Prefix.IsServer below.
func parsePrefix(raw string) UserInfo {
	user := strings.IndexByte(raw, tagUserSep)
	host := strings.IndexByte(raw, tagHostSep)

	switch {
	case user > 0 && host > user:
		return UserInfo{Nick: raw[:user], User: raw[user+1 : host], Host: raw[host+1:]}
	case user > 0:
		return UserInfo{Nick: raw[:user], User: raw[user+1:]}
	case host > 0:
		return UserInfo{Nick: raw[:host], Host: raw[host+1:]}
	default:
		return UserInfo{Nick: raw}
	}
}

// Prefix is the `[':' prefix SPACE]` portion of an IrcMsg, either a client
// hostmask or a bare server name (§3 Data model: IrcMsg).
type Prefix struct {
	User *UserInfo // set when the prefix names a client.
	Server string   // set when the prefix names a server (no '!'/'@').
}

// IsServer reports whether this prefix names a server rather than a client.
func (p *Prefix) IsServer() bool {
	return p != nil && p.User == nil
}

func (p *Prefix) String() string {
	if p == nil {
		return ""
	}
	if p.User != nil {
		return p.User.String()
	}
	return p.Server
}

func parseIrcPrefix(raw string) *Prefix {
	ui := parsePrefix(raw)
	if ui.IsHostmask() {
		return &Prefix{User: &ui}
	}
	// No '!' or '@' found: either a server name, or a nick with no
	// user/host the server chose to omit. We can't tell these apart from
	// the wire alone; treat bare tokens as servernames, since that's the
	// overwhelmingly common real-world shape (server-originated notices,
	// numerics) and callers that need "sender is self" use ReqNick/ReqUser
	// continuations rather than inspecting Prefix directly.
	return &Prefix{Server: raw}
}

// IrcMsg is a single parsed IRC protocol line (§3 Data model, §4.1).
type IrcMsg struct {
	Prefix *Prefix
	Cmd    string
	Params []string
	Trail  string
	// HasTrail distinguishes an explicit empty trailing param (`cmd arg :`)
	// from no trailing param at all, so serialization round-trips exactly.
	HasTrail bool
}

// ParseError is returned by ParseIrcMsg for a line with no command token.
type ParseError struct {
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("irc: parse error at offset %d: %s", e.Offset, e.Reason)
}

// ParseIrcMsg parses a single CRLF- or LF-delimited line into an IrcMsg;
// any trailing CR/LF bytes are stripped here, so the caller may pass the
// line with its delimiter still attached. Unknown
// commands are preserved verbatim in Cmd; a missing prefix yields a nil
// Prefix; a missing trail yields an empty, HasTrail=false Trail. Lenient
// per §4.1: the only failure mode is a line with no command token at all.
func ParseIrcMsg(line string) (*IrcMsg, error) {
	raw := strings.TrimRightFunc(line, func(r rune) bool { return r == '\r' || r == '\n' })
	if raw == "" {
		return nil, &ParseError{Offset: 0, Reason: "empty line"}
	}

	m := &IrcMsg{}
	i := 0

	if raw[0] == tagPrefix {
		sp := strings.IndexByte(raw, tagSpace)
		if sp < 2 {
			return nil, &ParseError{Offset: 0, Reason: "prefix with no command"}
		}
		m.Prefix = parseIrcPrefix(raw[1:sp])
		i = sp + 1
	}

	for i < len(raw) && raw[i] == tagSpace {
		i++
	}
	if i >= len(raw) {
		return nil, &ParseError{Offset: i, Reason: "no command token"}
	}

	rest := raw[i:]
	cmdEnd := strings.IndexByte(rest, tagSpace)
	if cmdEnd < 0 {
		m.Cmd = strings.ToUpper(rest)
		return m, nil
	}
	m.Cmd = strings.ToUpper(rest[:cmdEnd])
	rest = rest[cmdEnd+1:]

	for {
		rest = strings.TrimLeft(rest, " ")
		if rest == "" {
			return m, nil
		}
		if rest[0] == tagPrefix {
			m.Trail = rest[1:]
			m.HasTrail = true
			return m, nil
		}
		sp := strings.IndexByte(rest, tagSpace)
		if sp < 0 {
			m.Params = append(m.Params, rest)
			return m, nil
		}
		m.Params = append(m.Params, rest[:sp])
		rest = rest[sp+1:]
	}
}

// Bytes serializes the IrcMsg back to wire form, CRLF-terminated, exactly
// as §4.1 specifies: `[":" prefix " "] cmd (" " param)* [" :" trail] CRLF`.
// Truncated to maxLineBytes per RFC 2812, matching how a real server would
// reject or mangle an oversized line.
func (m *IrcMsg) Bytes() []byte {
	var b bytes.Buffer
	if m.Prefix != nil {
		b.WriteByte(tagPrefix)
		b.WriteString(m.Prefix.String())
		b.WriteByte(tagSpace)
	}
	b.WriteString(m.Cmd)
	for _, p := range m.Params {
		b.WriteByte(tagSpace)
		b.WriteString(p)
	}
	if m.HasTrail || m.Trail != "" {
		b.WriteByte(tagSpace)
		b.WriteByte(tagPrefix)
		b.WriteString(m.Trail)
	}
	b.WriteString("\r\n")

	out := b.Bytes()
	if len(out) > maxLineBytes {
		out = append(out[:maxLineBytes-2], '\r', '\n')
	}
	return out
}

func (m *IrcMsg) String() string {
	return string(m.Bytes())
}
