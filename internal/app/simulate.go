package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"pairwatch/internal/alerting"
)

// SimulateAlert pushes a synthetic notification through the configured
// channels, for verifying delivery without waiting for a real breach.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	dispatcher := a.newDispatcher()
	channels := opts.Channels
	if len(channels) == 0 {
		channels = dispatcher.Channels()
	}
	if len(channels) == 0 {
		return errors.New("no alert channels configured")
	}

	direction := alerting.DirectionUpper
	threshold := 2.0
	if opts.ZScore < 0 {
		direction = alerting.DirectionLower
		threshold = -2.0
	}

	name := opts.RuleName
	if name == "" {
		name = "simulated alert"
	}

	note := alerting.Notification{
		RuleName:    name,
		Symbol1:     opts.Symbol1,
		Symbol2:     opts.Symbol2,
		Timeframe:   "1m",
		ZScore:      opts.ZScore,
		Threshold:   threshold,
		Direction:   direction,
		Signal:      "simulated",
		TriggeredAt: time.Now().UTC(),
	}

	result := dispatcher.Dispatch(ctx, channels, nil, note)
	failed := 0
	for channel, ok := range result.Sent {
		if ok {
			fmt.Fprintf(os.Stdout, "%s: delivered\n", channel)
			continue
		}
		failed++
		fmt.Fprintf(os.Stdout, "%s: failed (%s)\n", channel, result.Errors[channel])
	}
	if failed > 0 {
		return fmt.Errorf("%d channel(s) failed", failed)
	}
	return nil
}
