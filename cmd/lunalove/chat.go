package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	lunalove "github.com/NexovateSolution/LunaLove-sub000"
	"github.com/spf13/cobra"
)

var (
	chatHistoryLimit int
	chatHistoryJSON  bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversation commands",
	Long:  "Read, send and watch LunaLove conversations.",
}

// ============================================================================
// chat history
// ============================================================================

var chatHistoryCmd = &cobra.Command{
	Use:   "history <conversation-id>",
	Short: "Print recent messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		messages, err := client.History(ctx, args[0], chatHistoryLimit)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if chatHistoryJSON {
			data, _ := json.MarshalIndent(messages, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		for _, m := range messages {
			printWireMessage(m)
		}
		return nil
	},
}

// ============================================================================
// chat send
// ============================================================================

var chatSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message>",
	Short: "Send a text message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msg, err := client.SendChatMessage(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		fmt.Printf("Sent %s\n", msg.ID)
		return nil
	},
}

// ============================================================================
// chat watch
// ============================================================================

var chatWatchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Follow a conversation live until interrupted",
	Long:  "Open a conversation and print messages, typing and presence changes as they arrive.\nPush delivery is used when available; otherwise the client falls back to polling.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session := getSession()
		defer session.Close()

		conv, err := session.OpenConversation(context.Background(), args[0], lunalove.ConversationHandlers{
			OnMessage: func(m lunalove.Message) {
				fmt.Printf("[%s] %s: %s\n", m.SentAt.Format("15:04:05"), m.SenderID, m.Body)
			},
			OnTypingChange: func(userID string, typing bool) {
				if typing {
					fmt.Printf("-- %s is typing...\n", userID)
				} else {
					fmt.Printf("-- %s stopped typing\n", userID)
				}
			},
			OnPresenceChange: func(userID string, online bool) {
				if online {
					fmt.Printf("-- %s is online\n", userID)
				} else {
					fmt.Printf("-- %s went offline\n", userID)
				}
			},
		})
		if err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
		defer conv.Close()

		for _, m := range conv.Messages() {
			fmt.Printf("[%s] %s: %s\n", m.SentAt.Format("15:04:05"), m.SenderID, m.Body)
		}
		if conv.IsLiveConnected() {
			fmt.Println("-- connected, watching live (Ctrl-C to stop)")
		} else {
			fmt.Println("-- push unavailable, polling (Ctrl-C to stop)")
		}

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		<-interrupt
		return nil
	},
}

func printWireMessage(m lunalove.WireMessage) {
	at := time.UnixMilli(m.SentAt).Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] %s: %s\n", at, m.SenderID, m.Body)
}

func init() {
	chatHistoryCmd.Flags().IntVar(&chatHistoryLimit, "limit", 50, "maximum number of messages")
	chatHistoryCmd.Flags().BoolVar(&chatHistoryJSON, "json", false, "output raw JSON")

	chatCmd.AddCommand(chatHistoryCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatWatchCmd)
	rootCmd.AddCommand(chatCmd)
}
