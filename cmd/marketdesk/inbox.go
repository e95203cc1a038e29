package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"marketdesk/internal/inbox"
	"marketdesk/internal/model"
)

func (a *app) chatsCmd() *cobra.Command {
	var mp, account, read string
	var pages int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations matching a filter, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := model.ParseFilter(mp, account, read)
			if err != nil {
				return err
			}
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			st := a.newInbox(creds)
			if err := st.ApplyFilters(ctx, f); err != nil {
				return err
			}
			for i := 1; i < pages && st.Snapshot().HasMore; i++ {
				if err := st.LoadMoreConversations(ctx); err != nil {
					return err
				}
			}
			printConversations(a.out, st.Snapshot())
			for _, m := range st.Snapshot().Unavailable {
				fmt.Fprintf(a.errOut, "warning: %s did not answer, its chats are missing\n", m)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mp, "marketplace", "m", "all", "all, OZON or WB")
	cmd.Flags().StringVarP(&account, "account", "a", "all", "seller account id or all")
	cmd.Flags().StringVarP(&read, "read", "r", "unread", "unread or all")
	cmd.Flags().IntVarP(&pages, "pages", "p", 1, "pages to load per marketplace")
	return cmd
}

func (a *app) historyCmd() *cobra.Command {
	var mp string
	var accountID, older int
	cmd := &cobra.Command{
		Use:   "history <chat-id>",
		Short: "Print a conversation's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := conversationID(args[0], mp)
			if err != nil {
				return err
			}
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			st := a.newInbox(creds)
			st.Adopt(model.Conversation{ID: id, AccountID: accountID})
			if err := st.SelectConversation(ctx, id); err != nil {
				return err
			}
			for i := 0; i < older; i++ {
				if err := st.LoadOlderMessages(ctx); err != nil {
					return err
				}
			}
			c, _ := st.Conversation(id)
			printHistory(a.out, c)
			return nil
		},
	}
	cmd.Flags().IntVarP(&accountID, "account", "a", 0, "seller account id the chat belongs to")
	cmd.Flags().StringVarP(&mp, "marketplace", "m", "", "OZON or WB (guessed from the id when empty)")
	cmd.Flags().IntVar(&older, "older", 0, "extra pages of older messages to load")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func (a *app) sendCmd() *cobra.Command {
	var mp string
	var accountID int
	cmd := &cobra.Command{
		Use:   "send <chat-id> <text>...",
		Short: "Send a message to a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := conversationID(args[0], mp)
			if err != nil {
				return err
			}
			creds, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			st := a.newInbox(creds)
			st.Adopt(model.Conversation{ID: id, AccountID: accountID})
			if err := st.SendMessage(ctx, id, accountID, strings.Join(args[1:], " ")); err != nil {
				return err
			}
			c, _ := st.Conversation(id)
			if n := len(c.Messages); n > 0 {
				fmt.Fprintf(a.out, "Sent message %s\n", c.Messages[n-1].ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&accountID, "account", "a", 0, "seller account id the chat belongs to")
	cmd.Flags().StringVarP(&mp, "marketplace", "m", "", "OZON or WB (guessed from the id when empty)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// conversationID tags a chat id typed on the command line.
func conversationID(raw, mp string) (model.ConversationID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.ConversationID{}, fmt.Errorf("%w: empty chat id", model.ErrInvalidInput)
	}
	if mp == "" {
		return model.ParseConversationID(raw), nil
	}
	m := model.ParseMarketplace(mp)
	if m == model.MarketplaceUnknown {
		return model.ConversationID{}, fmt.Errorf("%w: marketplace %q", model.ErrInvalidInput, mp)
	}
	return model.NewConversationID(m, raw), nil
}

func printConversations(w io.Writer, snap inbox.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MARKETPLACE\tCHAT\tACCOUNT\tUNREAD\tWHEN\tLAST MESSAGE")
	for _, c := range snap.Conversations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Marketplace, c.ID.NativeID, strconv.Itoa(c.AccountID), c.UnreadCount, c.TimeLabel, c.LastMessage)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d chats, %d unread (%s)\n", len(snap.Conversations), snap.TotalUnread, snap.Filter)
	if snap.HasMore {
		fmt.Fprintln(w, "more chats available, use --pages")
	}
}

func printHistory(w io.Writer, c model.Conversation) {
	if c.HasMoreHistory {
		fmt.Fprintln(w, "(older messages available, use --older)")
	}
	for _, m := range c.Messages {
		text := m.Text
		if m.IsImage && text == "" {
			text = "[image]"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", m.DisplayTime, m.Role, text)
	}
	if len(c.Messages) == 0 {
		fmt.Fprintln(w, "no messages")
	}
}
