package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	lunalove "github.com/NexovateSolution/LunaLove-sub000"
	"github.com/spf13/cobra"
)

func init() {
	notificationsCmd.AddCommand(notificationsWatchCmd)
	rootCmd.AddCommand(notificationsCmd)
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Notification commands",
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print matches, messages and likes as they arrive",
	Long:  "Notifications only arrive over the push channel; without it this command sees nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		session := getSession()
		defer session.Close()

		session.OpenNotifications(context.Background(), func(n lunalove.Notification) {
			fmt.Printf("[%s] %s %s\n", n.CreatedAt.Format("15:04:05"), n.Category, string(n.Payload))
		})
		if session.ChannelState() != lunalove.ChannelOpen {
			fmt.Fprintln(os.Stderr, "Warning: push channel unavailable, notifications will not arrive.")
		} else {
			fmt.Println("-- watching notifications (Ctrl-C to stop)")
		}

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		<-interrupt
		return nil
	},
}
