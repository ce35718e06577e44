package irc2me

import (
	"crypto/tls"
	"fmt"
	"log"
)

const (
	cmdSTARTTLS = "STARTTLS"
	rplSTARTTLS = "670"
	errSTARTTLS = "691"
)

// Connect opens a Server, drives the registration handshake (§4.4) and
// returns an established Connection, or an error if registration never
// reaches RPL_WELCOME. startChannels is rejoined once registered.
//
// An IO error on the initial connect surfaces as ErrConnectFailed and
// yields no Connection, matching §4.4's error policy.
func Connect(dialer Dialer, srv Server, user Identity, startChannels map[string]string, tlsConfig *tls.Config, logger *log.Logger) (*Connection, error) {
	t, err := Dial(dialer, srv, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	conn := newConnection(srv, user, t, startChannels, logger)

	var replay []inboundItem
	if srv.Tls == TlsOpportunistic {
		buffered, err := attemptOpportunisticTLS(conn, tlsConfig)
		if err != nil {
			conn.Close()
			return nil, err
		}
		replay = buffered
	}

	conn.Send(&IrcMsg{Cmd: USER, Params: []string{user.UserName, "0", "*"}, Trail: user.RealName, HasTrail: true})
	conn.Send(&IrcMsg{Cmd: NICK, Params: []string{user.Nick}})

	if err := registerLoop(conn, user.NickAlt, startChannels, replay); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// attemptOpportunisticTLS requests STARTTLS and upgrades the transport if
// the server agrees (§4.2 TlsOpportunistic). Any message read while
// waiting for the STARTTLS reply that isn't itself the reply is preserved
// and returned as a replay buffer, to be drained by registerLoop before
// it resumes reading the (now possibly-encrypted) live transport — the
// mechanism described in §4.4's "Replay buffer".
func attemptOpportunisticTLS(conn *Connection, tlsConfig *tls.Config) ([]inboundItem, error) {
	if err := conn.Send(&IrcMsg{Cmd: cmdSTARTTLS}); err != nil {
		return nil, err
	}

	var buffered []inboundItem
	for {
		ts, msg, err := conn.Receive()
		if err != nil {
			return nil, &TransportError{Op: "starttls", Err: err}
		}

		switch msg.Cmd {
		case rplSTARTTLS:
			if err := conn.transport.UpgradeTLS(tlsConfig, conn.Server.Host); err != nil {
				return nil, err
			}
			return buffered, nil
		case errSTARTTLS:
			// Server refused; continue in plaintext with whatever else we
			// already saw buffered.
			return buffered, nil
		default:
			// Server doesn't understand STARTTLS or sent something else
			// first (e.g. a NOTICE) — keep it for replay and keep waiting,
			// but don't wait forever: anything that looks like a
			// registration numeral means there will be no STARTTLS reply
			// coming, so stop waiting and proceed in plaintext.
			buffered = append(buffered, inboundItem{Time: ts, Msg: msg})
			if msg.Cmd == RPL_WELCOME || msg.Cmd == ERR_NICKCOLLISION || msg.Cmd == ERR_NICKNAMEINUSE {
				return buffered, nil
			}
		}
	}
}

// registerLoop implements the waitForOK state machine (§4.4): WaitForOK,
// OK, Cancel. replay is drained head-first before the live transport, per
// the replay-buffer rule.
func registerLoop(conn *Connection, altNicks []string, startChannels map[string]string, replay []inboundItem) error {
	remaining := altNicks

	for {
		var msg *IrcMsg
		var err error

		if len(replay) > 0 {
			msg = replay[0].Msg
			replay = replay[1:]
		} else {
			_, msg, err = conn.Receive()
			if err != nil {
				conn.logf(SeverityError, "register", "%s", err)
				return &TransportError{Op: "register", Err: err}
			}
		}

		switch msg.Cmd {
		case RPL_WELCOME:
			conn.setEstablished()
			conn.logf(SeverityInfo, "register", "established as %s", conn.CurrentNick())
			for ch, key := range startChannels {
				sendJoin(conn, ch, key)
			}
			return nil

		case ERR_NICKCOLLISION, ERR_NICKNAMEINUSE:
			if len(remaining) == 0 {
				conn.logf(SeverityError, "register", "no alternate nicknames remain")
				conn.Send(&IrcMsg{Cmd: QUIT, Trail: "nickname collision", HasTrail: true})
				return ErrNoAltNicks
			}
			alt := remaining[0]
			remaining = remaining[1:]
			conn.SetNick(alt)
			if err := conn.Send(&IrcMsg{Cmd: NICK, Params: []string{alt}}); err != nil {
				return err
			}

		case NOTICE:
			res := Resolve(Dispatch(msg), conn.CurrentNick(), conn.User)
			conn.applyMessages(res.Add)
			conn.logf(SeverityInfo, "register", "notice during registration: %s", msg.Trail)

		default:
			res := Resolve(Dispatch(msg), conn.CurrentNick(), conn.User)
			conn.applyMessages(res.Add)
		}
	}
}

func sendJoin(conn *Connection, channel, key string) {
	if key == "" {
		conn.Send(&IrcMsg{Cmd: JOIN, Params: []string{channel}})
		return
	}
	conn.Send(&IrcMsg{Cmd: JOIN, Params: []string{channel, key}})
}
