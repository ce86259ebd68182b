package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/app"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history USER_A USER_B",
		Short: "Print the stored conversation between two users",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := app.OpenHistory(cfg.History, logger)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer st.Close()

			return printHistory(cmd.Context(), cmd.OutOrStdout(), st, args[0], args[1])
		},
	}
}

func printHistory(ctx context.Context, w io.Writer, st store.HistoryStore, userA, userB string) error {
	records, err := st.Query(ctx, userA, userB)
	if err != nil {
		return fmt.Errorf("query history: %w", err)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Time", "From", "To", "Kind", "Content"})
	for _, rec := range records {
		msg := rec.Message
		table.Append([]string{
			strconv.FormatInt(rec.Seq, 10),
			string(msg.Time),
			msg.From,
			msg.To,
			msg.Event,
			summary(msg),
		})
	}
	table.Render()

	_, err = fmt.Fprintf(w, "%d messages\n", len(records))
	return err
}

func summary(msg store.Message) string {
	if msg.IsMedia() {
		name := ""
		if msg.FileName != nil {
			name = *msg.FileName
		}
		kind := ""
		if msg.FileType != nil {
			kind = *msg.FileType
		}
		return fmt.Sprintf("[%s] %s (%d bytes)", kind, name, len(msg.FileData))
	}
	if msg.Content == nil {
		return ""
	}
	return *msg.Content
}
