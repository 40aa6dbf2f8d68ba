// chatcli is a terminal client for a pairchat server. It keeps one
// conversation open, prints live events, and sends every plain input line
// as a message.
//
// Commands: /star ID, /delete ID, /hide ID, /clear, /list, /online, /quit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"pairchat/internal/client"
	"pairchat/internal/domain/entity"
	ws "pairchat/internal/infrastructure/websocket"
	"pairchat/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var server, userID, peerID, token, logLevel string

	flagSet := pflag.NewFlagSet("chatcli", pflag.ContinueOnError)
	flagSet.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flagSet.StringVarP(&userID, "user", "u", "", "your user id")
	flagSet.StringVarP(&peerID, "peer", "p", "", "user id to chat with")
	flagSet.StringVar(&token, "token", os.Getenv("PAIRCHAT_TOKEN"), "bearer token (default: ask the server's /_dev/token)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "log level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if userID == "" || peerID == "" {
		flagSet.Usage()
		return fmt.Errorf("--user and --peer are required")
	}

	logger.Init("development", logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if token == "" {
		var err error
		if token, err = client.IssueDevToken(ctx, server, userID); err != nil {
			return fmt.Errorf("get development token: %w", err)
		}
	}

	socket, err := client.Dial(ctx, wsURL(server), token)
	if err != nil {
		return err
	}
	defer socket.Close()

	session := client.NewSession(userID, client.NewHTTPAPI(server, token), socket, func(n client.Notice) {
		fmt.Printf("! %s failed: %v\n", n.Action, n.Err)
	})

	go func() {
		err := socket.Run(ctx, func(ev ws.ServerEvent) {
			session.HandleEvent(ctx, ev)
			describe(ev, peerID)
		})
		if err != nil && ctx.Err() == nil {
			fmt.Printf("! connection closed: %v\n", err)
		}
		stop()
	}()

	if err := session.Join(); err != nil {
		return err
	}

	conversation, err := session.Open(ctx, peerID)
	if err != nil {
		return err
	}
	printAll(conversation, userID)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, session, conversation, userID, peerID, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, s *client.Session, c *client.Conversation, userID, peerID, line string) bool {
	if line == "" {
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch cmd {
	case "/quit":
		return true
	case "/list":
		printAll(c, userID)
	case "/online":
		fmt.Printf("online: %s\n", strings.Join(s.Online(), ", "))
	case "/star":
		err = s.ToggleStar(ctx, peerID, arg)
	case "/delete":
		err = s.Delete(ctx, peerID, arg)
	case "/hide":
		err = s.Hide(ctx, peerID, arg)
	case "/clear":
		err = s.Clear(ctx, peerID)
	default:
		if strings.HasPrefix(line, "/") {
			fmt.Println("commands: /star ID, /delete ID, /hide ID, /clear, /list, /online, /quit")
			return false
		}
		if typingErr := s.Typing(peerID); typingErr != nil {
			logger.Debug("typing pulse: %v", typingErr)
		}
		_, err = s.Send(ctx, peerID, line, "")
	}

	// Failed changes were already reported through the session's notices.
	if err == client.ErrMutationInFlight || err == client.ErrUnknownMessage {
		fmt.Printf("! %v\n", err)
	}
	return false
}

func describe(ev ws.ServerEvent, peerID string) {
	switch e := ev.(type) {
	case ws.ReceiveMessageEvent:
		if e.Message != nil && e.Message.SenderID == peerID {
			fmt.Printf("< %s\n", line(e.Message, ""))
		}
	case ws.TypingPulseEvent:
		if e.SenderID == peerID {
			fmt.Printf("  %s is typing...\n", peerID)
		}
	case ws.MessagesReadEvent:
		if e.ReaderID == peerID {
			fmt.Printf("  %s read your messages\n", peerID)
		}
	case ws.MessageDeletedEvent:
		fmt.Printf("  message %s was deleted\n", e.MessageID)
	case ws.FriendshipEvent:
		fmt.Printf("  %s: %s (%s)\n", e.Kind, e.Friend.Name, e.Friend.ID)
	case ws.AccountDeletedEvent:
		if e.DeletedUserID == peerID {
			fmt.Printf("  %s deleted their account\n", peerID)
		}
	case ws.EvictedEvent:
		fmt.Printf("! %s\n", e.Reason)
	}
}

func printAll(c *client.Conversation, userID string) {
	for _, m := range c.Messages() {
		prefix := "<"
		if m.SenderID == userID {
			prefix = ">"
		}
		fmt.Printf("%s %s\n", prefix, line(m, userID))
	}
}

func line(m *entity.Message, userID string) string {
	var flags []string
	if m.SenderID == userID && m.IsRead {
		flags = append(flags, "read")
	}
	if len(m.StarredBy) > 0 {
		flags = append(flags, "starred")
	}

	body := m.Text
	if m.Image != "" {
		body = strings.TrimSpace(body + " [image " + m.Image + "]")
	}
	out := fmt.Sprintf("[%s %s] %s", m.ID, m.Timestamp.Local().Format("15:04"), body)
	if len(flags) > 0 {
		out += " (" + strings.Join(flags, ", ") + ")"
	}
	return out
}

func wsURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	}
	return server + "/ws"
}
