package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"pairwatch/internal/alerting"
	"pairwatch/internal/monitor"
)

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(_ context.Context, channels []string, _ map[string]json.RawMessage, _ alerting.Notification) alerting.DispatchResult {
	sent := make(map[string]bool, len(channels))
	for _, ch := range channels {
		sent[ch] = true
	}
	return alerting.DispatchResult{Sent: sent, Errors: map[string]string{}}
}

// Check runs a single evaluation cycle and prints the summary. With
// DryRun set, notifications are swallowed but history is still written.
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var dispatcher monitor.Dispatcher = a.newDispatcher()
	if opts.DryRun {
		dispatcher = noopDispatcher{}
	}

	mon := a.newMonitor(store, dispatcher, nil)
	summary, err := mon.CheckNow(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "cycle finished in %s\n", summary.Duration)
	fmt.Fprintf(os.Stdout, "rules: %d  fired: %d  suppressed: %d  skipped: %d  errors: %d\n",
		summary.RulesTotal, summary.Fired, summary.Suppressed, summary.Skipped, summary.Errors)
	return nil
}
