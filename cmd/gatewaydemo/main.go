// Command gatewaydemo connects a single network and prints every PRIVMSG
// it receives, answering "hello world!" to the message's target whenever
// the text contains "hello". It exists to exercise Connect/StartBroadcasting/Subscribe end to
// end, the way lrstanley-girc's examples/simple demonstrates Client/
// AddCallback/Loop for a single-connection bot.
package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/kvitebjorn/irc2me"
)

func main() {
	logger := log.New(os.Stdout, "gatewaydemo: ", log.LstdFlags)

	user := irc2me.Identity{
		Nick:     "gatewaydemo",
		NickAlt:  []string{"gatewaydemo_", "gatewaydemo__"},
		UserName: "gatewaydemo",
		RealName: "gatewaydemo bot",
	}
	server := irc2me.Server{Host: "irc.libera.chat", Port: 6667, Tls: irc2me.TlsNone}

	conn, err := irc2me.Connect(nil, server, user, map[string]string{"#test": ""}, nil, logger)
	if err != nil {
		log.Fatalf("connect: %s", err)
	}

	broadcast := irc2me.StartBroadcasting(conn)
	cmds := irc2me.NewCommands(conn)

	broadcast.Subscribe(func(_ time.Time, msg irc2me.Message) {
		if msg.Type != irc2me.MessageTypePrivMsg {
			return
		}
		logger.Printf("<%s> %s: %s", msg.PrivMsg.To, msg.PrivMsg.From.Nick, msg.PrivMsg.Text)
		if strings.Contains(msg.PrivMsg.Text, "hello") {
			cmds.Message(msg.PrivMsg.To, "hello world!")
		}
	})

	select {}
}
