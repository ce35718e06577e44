package irc2me

import (
	"bufio"
	"net"
	"testing"
	"time"
)

// pipeDialer hands back one end of an in-memory net.Pipe and exposes the
// other end to the test as the fake server socket.
type pipeDialer struct {
	server net.Conn
}

func (d *pipeDialer) Dial(network, address string) (net.Conn, error) {
	client, server := net.Pipe()
	d.server = server
	return client, nil
}

// serverSide wraps the fake server socket in a line reader/writer so tests
// can script a registration exchange without a real IRC daemon.
func serverSide(conn net.Conn) (*bufio.Reader, *bufio.Writer) {
	return bufio.NewReader(conn), bufio.NewWriter(conn)
}

func TestConnectHappyPath(t *testing.T) {
	d := &pipeDialer{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for d.server == nil {
			time.Sleep(time.Millisecond)
		}
		r, w := serverSide(d.server)

		// USER, then NICK.
		r.ReadString('\n')
		r.ReadString('\n')

		w.WriteString(":srv 001 alice :Welcome\r\n")
		w.Flush()
	}()

	user := Identity{Nick: "alice", UserName: "alice", RealName: "Alice"}
	conn, err := Connect(d, Server{Host: "irc.example.org", Port: 6667}, user, nil, nil, nil)
	if err != nil {
		t.Fatalf("Connect: %s", err)
	}
	defer conn.Close()

	if conn.Status() != StatusEstablished {
		t.Fatalf("status = %s, want established", conn.Status())
	}
	if conn.CurrentNick() != "alice" {
		t.Fatalf("nick = %q", conn.CurrentNick())
	}
	<-done
}

func TestConnectNickCollisionFallsBackToAlt(t *testing.T) {
	d := &pipeDialer{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for d.server == nil {
			time.Sleep(time.Millisecond)
		}
		r, w := serverSide(d.server)

		r.ReadString('\n') // USER
		r.ReadString('\n') // NICK alice

		w.WriteString(":srv 433 * alice :Nickname is already in use.\r\n")
		w.Flush()

		r.ReadString('\n') // NICK alice_

		w.WriteString(":srv 001 alice_ :Welcome\r\n")
		w.Flush()
	}()

	user := Identity{Nick: "alice", NickAlt: []string{"alice_", "alice__"}, UserName: "alice", RealName: "Alice"}
	conn, err := Connect(d, Server{Host: "irc.example.org", Port: 6667}, user, nil, nil, nil)
	if err != nil {
		t.Fatalf("Connect: %s", err)
	}
	defer conn.Close()

	if conn.CurrentNick() != "alice_" {
		t.Fatalf("nick = %q, want alice_", conn.CurrentNick())
	}
	<-done
}

func TestConnectExhaustedAltNicksQuits(t *testing.T) {
	d := &pipeDialer{}
	done := make(chan struct{})

	go func() {
		defer close(done)
		for d.server == nil {
			time.Sleep(time.Millisecond)
		}
		r, w := serverSide(d.server)

		r.ReadString('\n') // USER
		r.ReadString('\n') // NICK alice

		w.WriteString(":srv 433 * alice :Nickname is already in use.\r\n")
		w.Flush()

		r.ReadString('\n') // QUIT
	}()

	user := Identity{Nick: "alice", UserName: "alice", RealName: "Alice"}
	_, err := Connect(d, Server{Host: "irc.example.org", Port: 6667}, user, nil, nil, nil)
	if err != ErrNoAltNicks {
		t.Fatalf("err = %v, want ErrNoAltNicks", err)
	}
	<-done
}

func TestConnectRejoinsStartChannelsWithKeys(t *testing.T) {
	d := &pipeDialer{}
	joined := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for d.server == nil {
			time.Sleep(time.Millisecond)
		}
		r, w := serverSide(d.server)

		r.ReadString('\n') // USER
		r.ReadString('\n') // NICK

		w.WriteString(":srv 001 alice :Welcome\r\n")
		w.Flush()

		line, _ := r.ReadString('\n')
		joined <- line
	}()

	user := Identity{Nick: "alice", UserName: "alice", RealName: "Alice"}
	conn, err := Connect(d, Server{Host: "irc.example.org", Port: 6667}, user, map[string]string{"#secret": "hunter2"}, nil, nil)
	if err != nil {
		t.Fatalf("Connect: %s", err)
	}
	defer conn.Close()

	select {
	case line := <-joined:
		if line != "JOIN #secret hunter2\r\n" {
			t.Fatalf("got join line %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for JOIN")
	}
	<-done
}
