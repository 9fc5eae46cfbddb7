// Command chatcli is a small terminal front end for the conversation
// subsystem, mainly useful for poking at a running server during development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Manzilah-gp/manzilah-web-sub001/internal/chatclient"
)

func main() {
	socketURL := flag.String("socket", "ws://localhost:8080/ws", "websocket endpoint")
	baseURL := flag.String("api", "http://localhost:3000", "REST endpoint root")
	token := flag.String("token", "", "bearer token")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	session := chatclient.NewSession(chatclient.Options{
		SocketURL: *socketURL,
		BaseURL:   *baseURL,
		Token:     *token,
		Logger:    logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = session.Start(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "start:", err)
		os.Exit(1)
	}
	defer session.Close()

	fmt.Println("connected. commands: ls, open <id>, say <text>, rm <messageId>, who, find <q>, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		runCommand(ctx, session, cmd, arg)
		cancel()

		if cmd == "quit" {
			return
		}
	}
}

func runCommand(ctx context.Context, session *chatclient.Session, cmd, arg string) {
	switch cmd {
	case "ls":
		for _, conv := range session.Conversations() {
			marker := " "
			if online := session.IsOnline(conv.DisplayID); online {
				marker = "*"
			}
			fmt.Printf("%s %-24s  %-20s  unread=%d  %s\n",
				marker, conv.ID, conv.DisplayName, conv.UnreadCount, conv.LastMessage)
		}

	case "open":
		if err := session.SelectConversation(ctx, arg); err != nil {
			fmt.Println("open:", err)
			return
		}
		for _, msg := range session.Messages() {
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.SenderName, msg.Text)
		}

	case "say":
		session.NotifyTyping()
		if _, err := session.SendMessage(ctx, arg); err != nil {
			fmt.Println("say:", err)
		}

	case "rm":
		if err := session.DeleteMessage(ctx, arg); err != nil {
			fmt.Println("rm:", err)
		}

	case "who":
		for _, id := range session.OnlineUsers() {
			fmt.Println(id)
		}

	case "find":
		users, err := session.SearchUsers(ctx, arg)
		if err != nil {
			fmt.Println("find:", err)
			return
		}
		for _, u := range users {
			fmt.Printf("%-16s  %s %s (%s)\n", u.UserID, u.FirstName, u.LastName, u.Role)
		}

	case "quit":

	default:
		fmt.Println("unknown command:", cmd)
	}
}
