package main

import (
	"context"
	"fmt"

	lunalove "github.com/NexovateSolution/LunaLove-sub000"
	"github.com/spf13/cobra"
)

var (
	giftQuantity int
	giftUnitCost int
)

var giftCmd = &cobra.Command{
	Use:   "gift",
	Short: "Gift commands",
}

var giftSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <gift-id>",
	Short: "Send a gift in a conversation",
	Long:  "Send a gift. The cost is charged to your wallet; a rejected send refunds it.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session := getSession()
		defer session.Close()

		// fetch the real balance so the pre-send check means something
		if err := session.RefreshWallet(context.Background()); err != nil {
			return fmt.Errorf("wallet fetch failed: %w", err)
		}

		res := session.SendGift(context.Background(), args[0], lunalove.GiftSelection{
			GiftID:   args[1],
			Quantity: giftQuantity,
			UnitCost: giftUnitCost,
		})
		if !res.OK {
			return fmt.Errorf("gift not sent (%s), balance %d", res.Reason, res.Balance)
		}

		fmt.Printf("Gift sent. Balance: %d\n", res.Balance)
		return nil
	},
}

func init() {
	giftSendCmd.Flags().IntVar(&giftQuantity, "quantity", 1, "number of gifts to send")
	giftSendCmd.Flags().IntVar(&giftUnitCost, "cost", 0, "coin cost per unit, used for the local balance check")

	giftCmd.AddCommand(giftSendCmd)
	rootCmd.AddCommand(giftCmd)
}
