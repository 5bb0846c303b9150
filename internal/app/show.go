package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"pairwatch/internal/storage"
)

// Show prints recent alert history.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	events, err := store.ListHistory(ctx, opts.Limit, storage.HistoryFilter{})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tZ-Score\tThreshold\tSignal\tChannels\tAck")

	for _, event := range events {
		fmt.Fprintf(
			writer,
			"%s\t%s/%s\t%.4f\t%.2f\t%s\t%s\t%v\n",
			event.TriggeredAt.UTC().Format(time.RFC3339),
			event.Snapshot.Symbol1,
			event.Snapshot.Symbol2,
			event.TriggerValue,
			event.ThresholdBreached,
			event.Snapshot.Signal,
			formatChannels(event.NotificationsSent),
			event.Acknowledged,
		)
	}

	writer.Flush()
	return nil
}

func formatChannels(sent map[string]bool) string {
	if len(sent) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(sent))
	for channel, ok := range sent {
		if ok {
			parts = append(parts, channel)
		} else {
			parts = append(parts, channel+"!")
		}
	}
	return strings.Join(parts, ",")
}
