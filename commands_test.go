package irc2me

import (
	"bufio"
	"net"
	"strings"
	"testing"
)

func TestCommandsJoinNeverExceedsWireLimit(t *testing.T) {
	client, server := net.Pipe()
	tr := &Transport{sock: client}
	tr.resetBuffers()
	conn := newConnection(Server{Host: "irc.example.org", Port: 6667}, Identity{Nick: "alice"}, tr, nil, nil)
	defer conn.Close()

	// Channel names sized so the batching logic packs each JOIN line as
	// close to the wire limit as it will go.
	channels := make([]string, 46)
	for i := range channels {
		channels[i] = "#" + strings.Repeat("x", 20)
	}

	var lines []string
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		r := bufio.NewReader(server)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				lines = append(lines, line)
			}
			if err != nil {
				return
			}
		}
	}()

	cmds := NewCommands(conn)
	if err := cmds.Join(channels...); err != nil {
		t.Fatalf("Join: %s", err)
	}
	server.Close()
	<-readDone

	if len(lines) == 0 {
		t.Fatal("expected at least one JOIN line")
	}
	for _, line := range lines {
		if len(line) > maxLineBytes {
			t.Fatalf("JOIN line %q is %d bytes, exceeds wire limit %d", line, len(line), maxLineBytes)
		}
	}
}
