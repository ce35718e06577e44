package irc2me

import "strings"

// IncomingResult is the pure output of Dispatch (§3 Data model). Exactly
// one of Done.isIncomingResult/ReqUser.../ReqNick... implementations is
// produced. ReqUser/ReqNick express "I need connection state to finish"
// without the dispatcher itself reading any mutable cell; Resolve below
// is what a runtime uses to satisfy them.
type IncomingResult interface {
	isIncomingResult()
}

// Done is a terminal IncomingResult: messages to send back to the
// server, structured Messages to enqueue, and an optional quit reason.
type Done struct {
	Send []*IrcMsg
	Add  []Message
	Quit *string
}

func (Done) isIncomingResult() {}

// ReqUser asks the runtime to supply the connection's current Identity.
type ReqUser struct {
	Fn func(Identity) IncomingResult
}

func (ReqUser) isIncomingResult() {}

// ReqNick asks the runtime to supply the connection's current nickname.
type ReqNick struct {
	Fn func(nick string) IncomingResult
}

func (ReqNick) isIncomingResult() {}

// Resolve drives an IncomingResult to completion against known
// (nick, user) state. This is the only place nick/user are read; Dispatch
// itself never touches them (§8 property 1).
func Resolve(res IncomingResult, nick string, user Identity) Done {
	for {
		switch r := res.(type) {
		case Done:
			return r
		case ReqNick:
			res = r.Fn(nick)
		case ReqUser:
			res = r.Fn(user)
		default:
			// Unreachable for any IncomingResult produced by Dispatch; a
			// defensive stop rather than a panic keeps a future variant
			// from taking the connection down.
			return Done{}
		}
	}
}

func reason(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func recovered(fn func() IncomingResult) (res IncomingResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Done{}
		}
	}()
	return fn()
}

// Dispatch is the pure mapping from one parsed IrcMsg to an
// IncomingResult (§4.5). It is total over the table in §4.5: every
// command either produces a structural Message, is explicitly silent, or
// falls through to OtherMsg/RawMsg — no inbound byte is ever silently
// dropped (§3 invariant 4). Pattern-match failures are caught and turned
// into an empty Done rather than propagating (§4.5 tie-break).
func Dispatch(m *IrcMsg) IncomingResult {
	return recovered(func() IncomingResult { return dispatch(m) })
}

func dispatch(m *IrcMsg) IncomingResult {
	switch m.Cmd {
	case PING:
		return Done{Send: []*IrcMsg{{Cmd: PONG, Trail: m.Trail, HasTrail: m.HasTrail}}}

	case JOIN:
		who := m.Prefix
		if who == nil || who.IsServer() {
			return otherOf(m)
		}
		chans := joinChannels(m)
		return ReqNick{Fn: func(nick string) IncomingResult {
			var msgs []Message
			for _, ch := range chans {
				msgs = append(msgs, joinOf(&JoinMsg{Channel: ch, Who: selfOrWho(who.User, nick)}))
			}
			return Done{Add: msgs}
		}}

	case PART:
		who := m.Prefix
		if who == nil || who.IsServer() || len(m.Params) == 0 {
			return otherOf(m)
		}
		ch := m.Params[0]
		return ReqNick{Fn: func(nick string) IncomingResult {
			return Done{Add: []Message{partOf(&PartMsg{Channel: ch, Who: selfOrWho(who.User, nick)})}}
		}}

	case QUIT:
		who := m.Prefix
		if who == nil || who.IsServer() {
			return otherOf(m)
		}
		r := reason(m.Trail)
		return ReqNick{Fn: func(nick string) IncomingResult {
			return Done{Add: []Message{quitOf(&QuitMsg{Who: selfOrWho(who.User, nick), Reason: r})}}
		}}

	case KICK:
		if len(m.Params) < 2 {
			return otherOf(m)
		}
		return Done{Add: []Message{kickOf(&KickMsg{
			Channel: m.Params[0],
			Nick:    m.Params[1],
			Reason:  reason(m.Trail),
		})}}

	case KILL:
		return Done{Quit: reason("KILL received")}

	case PRIVMSG:
		if m.Prefix == nil || len(m.Params) == 0 {
			return otherOf(m)
		}
		return Done{Add: []Message{privMsgOf(&PrivMsg{From: prefixUserOr(m.Prefix), To: m.Params[0], Text: m.Trail})}}

	case NOTICE:
		if m.Prefix == nil || len(m.Params) == 0 {
			return otherOf(m)
		}
		return Done{Add: []Message{noticeOf(&NoticeMsg{From: prefixUserOr(m.Prefix), To: m.Params[0], Text: m.Trail})}}

	case NICK:
		who := m.Prefix
		if who == nil || who.IsServer() || len(m.Params) == 0 && m.Trail == "" {
			return otherOf(m)
		}
		newNick := m.Trail
		if newNick == "" && len(m.Params) > 0 {
			newNick = m.Params[0]
		}
		return Done{Add: []Message{nickOf(&NickMsg{OldUser: who.User, NewNick: newNick})}}

	case ERROR:
		return Done{Quit: reason(m.Trail)}

	case RPL_MOTDSTART, RPL_MOTD:
		return Done{Add: []Message{motdOf(&MOTDMsg{Text: m.Trail})}}

	case RPL_ENDOFMOTD, RPL_ENDOFNAMES:
		return Done{}

	case RPL_TOPIC:
		if len(m.Params) < 2 {
			return otherOf(m)
		}
		topic := m.Trail
		return Done{Add: []Message{topicOf(&TopicMsg{Channel: m.Params[1], Topic: &topic})}}

	case RPL_NOTOPIC:
		if len(m.Params) < 2 {
			return otherOf(m)
		}
		return Done{Add: []Message{topicOf(&TopicMsg{Channel: m.Params[1], Topic: nil})}}

	case RPL_NAMREPLY:
		if len(m.Params) < 3 {
			return otherOf(m)
		}
		return Done{Add: []Message{namreplyOf(&NamreplyMsg{
			Channel: m.Params[2],
			Names:   parseNames(m.Trail),
		})}}

	case ERR_NICKCOLLISION, ERR_NICKNAMEINUSE:
		return Done{Add: []Message{errorOf(&ErrorMsg{Cmd: m.Cmd})}}

	default:
		return otherOf(m)
	}
}

func otherOf(m *IrcMsg) Done {
	return Done{Add: []Message{rawOf(&RawMsg{Prefix: m.Prefix, Cmd: m.Cmd, Params: m.Params, Trail: m.Trail})}}
}

func prefixUserOr(p *Prefix) UserInfo {
	if p != nil && p.User != nil {
		return *p.User
	}
	if p != nil {
		return UserInfo{Nick: p.Server}
	}
	return UserInfo{}
}

// selfOrWho returns nil (the sender is the connection itself) when who's
// nick matches the connection's current nick, else a copy of who (§4.5:
// "user?=None if sender is self").
func selfOrWho(who *UserInfo, currentNick string) *UserInfo {
	if who == nil {
		return nil
	}
	if who.Nick == currentNick {
		return nil
	}
	cp := *who
	return &cp
}

func joinChannels(m *IrcMsg) []string {
	list := m.Trail
	if list == "" && len(m.Params) > 0 {
		list = m.Params[0]
	}
	if list == "" {
		return nil
	}
	return strings.Split(list, ",")
}

func parseNames(trail string) []NameflagEntry {
	fields := strings.Fields(trail)
	out := make([]NameflagEntry, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		if flag, ok := userflagPrefixes[f[0]]; ok && len(f) > 1 {
			out = append(out, NameflagEntry{Nick: f[1:], Flag: flag})
		} else {
			out = append(out, NameflagEntry{Nick: f, Flag: UserflagNone})
		}
	}
	return out
}
