package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gwi.com/rag-orchestrator/internal/core"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question in a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var (
	askConversation string
	askCollection   string
)

func init() {
	askCmd.Flags().StringVar(&askConversation, "conversation", "cli", "Conversation id")
	askCmd.Flags().StringVar(&askCollection, "collection", "", "Collection to search instead of the conversation id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Orchestrator.Ask(cmd.Context(), core.AskRequest{
		ConversationID: askConversation,
		Question:       args[0],
		CollectionID:   askCollection,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
	return nil
}
