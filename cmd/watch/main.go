package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type clientMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Room    uint64 `json:"room,omitempty"`
	Agent   uint64 `json:"agent,omitempty"`
	Content string `json:"content,omitempty"`
}

type serverMessage struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func main() {
	server := flag.String("server", "ws://localhost:8080/ws", "Vault City websocket URL")
	channels := flag.String("channels", "room:*,agent:*", "comma-separated channels to watch")
	flag.Parse()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, *server, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *server, err)
		os.Exit(1)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Println("Vault City Watcher")
	fmt.Printf("Server: %s | Channels: %s\n", *server, *channels)
	fmt.Println("Commands: /start /stop /reset, @room:<id> <msg>, @agent:<id> <msg>")
	fmt.Println("---")

	for _, ch := range strings.Split(*channels, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			continue
		}
		if err := wsjson.Write(ctx, conn, clientMessage{Type: "subscribe", Channel: ch}); err != nil {
			fmt.Fprintf(os.Stderr, "subscribe %s: %v\n", ch, err)
			os.Exit(1)
		}
	}

	go printEvents(ctx, conn)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		msg, ok := parseCommand(input)
		if !ok {
			fmt.Println("unrecognized command")
			continue
		}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			return
		}
	}
}

func printEvents(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg serverMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			fmt.Fprintf(os.Stderr, "\nconnection lost: %v\n", err)
			os.Exit(1)
		}
		ts := msg.Timestamp.Format("15:04:05")
		if msg.Channel != "" {
			fmt.Printf("[%s] %-24s %s %v\n", ts, msg.Channel, msg.Type, msg.Data)
		} else {
			fmt.Printf("[%s] %s %v\n", ts, msg.Type, msg.Data)
		}
	}
}

// parseCommand turns a console line into a protocol message.
// "/start" controls the world; "@room:3 hello" injects chat.
func parseCommand(input string) (clientMessage, bool) {
	switch input {
	case "/start":
		return clientMessage{Type: "START"}, true
	case "/stop":
		return clientMessage{Type: "STOP"}, true
	case "/reset":
		return clientMessage{Type: "RESET"}, true
	}
	if !strings.HasPrefix(input, "@") {
		return clientMessage{}, false
	}
	target, content, ok := strings.Cut(input[1:], " ")
	if !ok || content == "" {
		return clientMessage{}, false
	}
	kind, raw, ok := strings.Cut(target, ":")
	if !ok {
		return clientMessage{}, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return clientMessage{}, false
	}
	switch kind {
	case "room":
		return clientMessage{Type: "CHAT", Room: id, Content: content}, true
	case "agent":
		return clientMessage{Type: "CHAT", Agent: id, Content: content}, true
	}
	return clientMessage{}, false
}
