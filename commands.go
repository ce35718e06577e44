package irc2me

// Commands is a thin convenience wrapper around a Connection's outbound
// actions, grounded on lrstanley-girc's commands.go Commands type. Unlike
// girc's version there is no CTCP/SendRaw surface here (CAP/IRCv3 features
// beyond plain registration are out of scope); what's kept is the batching
// and over-length-message handling.
type Commands struct {
	conn *Connection
}

// NewCommands wraps conn for outbound convenience calls.
func NewCommands(conn *Connection) *Commands {
	return &Commands{conn: conn}
}

// Join enters one or more channels, batching as many as fit on a single
// JOIN line to avoid sending one round-trip per channel, the way girc's
// Commands.Join does.
func (cmd *Commands) Join(channels ...string) error {
	max := maxLineBytes - len("\r\n") - len(JOIN) - 1

	var buffer string
	for i, ch := range channels {
		candidate := ch
		if buffer != "" {
			candidate = buffer + "," + ch
		}
		if len(candidate) > max && buffer != "" {
			if err := cmd.conn.Send(&IrcMsg{Cmd: JOIN, Params: []string{buffer}}); err != nil {
				return err
			}
			buffer = ch
		} else {
			buffer = candidate
		}
		if i == len(channels)-1 && buffer != "" {
			if err := cmd.conn.Send(&IrcMsg{Cmd: JOIN, Params: []string{buffer}}); err != nil {
				return err
			}
		}
	}
	return nil
}

// JoinKey enters a single key-protected channel.
func (cmd *Commands) JoinKey(channel, key string) error {
	return cmd.conn.Send(&IrcMsg{Cmd: JOIN, Params: []string{channel, key}})
}

// Part leaves a channel, optionally with a parting message.
func (cmd *Commands) Part(channel, message string) error {
	if message == "" {
		return cmd.conn.Send(&IrcMsg{Cmd: PART, Params: []string{channel}})
	}
	return cmd.conn.Send(&IrcMsg{Cmd: PART, Params: []string{channel}, Trail: message, HasTrail: true})
}

// Message sends a PRIVMSG to target, splitting it across multiple lines if
// it would otherwise exceed the wire's 512-byte limit (§4.1).
func (cmd *Commands) Message(target, text string) error {
	for _, chunk := range splitTrail(text, maxTrailLen(PRIVMSG, target)) {
		if err := cmd.conn.Send(&IrcMsg{Cmd: PRIVMSG, Params: []string{target}, Trail: chunk, HasTrail: true}); err != nil {
			return err
		}
	}
	return nil
}

// Notice sends a NOTICE to target, splitting as Message does.
func (cmd *Commands) Notice(target, text string) error {
	for _, chunk := range splitTrail(text, maxTrailLen(NOTICE, target)) {
		if err := cmd.conn.Send(&IrcMsg{Cmd: NOTICE, Params: []string{target}, Trail: chunk, HasTrail: true}); err != nil {
			return err
		}
	}
	return nil
}

// Kick removes nick from channel, optionally with a reason.
func (cmd *Commands) Kick(channel, nick, reason string) error {
	if reason == "" {
		return cmd.conn.Send(&IrcMsg{Cmd: KICK, Params: []string{channel, nick}})
	}
	return cmd.conn.Send(&IrcMsg{Cmd: KICK, Params: []string{channel, nick}, Trail: reason, HasTrail: true})
}

// Nick requests a nickname change. The server's response (OK or a
// collision numeric) arrives asynchronously through the broadcast hub;
// this does not update Connection.CurrentNick itself.
func (cmd *Commands) Nick(nick string) error {
	return cmd.conn.Send(&IrcMsg{Cmd: NICK, Params: []string{nick}})
}

// Quit requests the server close the session, with an optional reason.
func (cmd *Commands) Quit(reason string) error {
	if reason == "" {
		return cmd.conn.Send(&IrcMsg{Cmd: QUIT})
	}
	return cmd.conn.Send(&IrcMsg{Cmd: QUIT, Trail: reason, HasTrail: true})
}
