package alerting

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DispatchResult records per-channel delivery outcomes for one alert.
type DispatchResult struct {
	Sent   map[string]bool
	Errors map[string]string
}

// Dispatcher fans one notification out to the rule's channels. A failed
// channel never blocks or cancels the others.
type Dispatcher struct {
	notifiers map[string]Notifier
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewDispatcher(notifiers []Notifier, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	byName := make(map[string]Notifier, len(notifiers))
	for _, n := range notifiers {
		byName[n.Name()] = n
	}
	return &Dispatcher{
		notifiers: byName,
		timeout:   timeout,
		logger:    logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Channels returns the names of the configured notifiers.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		names = append(names, name)
	}
	return names
}

// Dispatch delivers note to every requested channel concurrently and
// reports per-channel success. Unknown channel names are recorded as
// errors, not dropped silently. config carries the rule's opaque
// per-channel blobs, passed through to each notifier uninterpreted.
func (d *Dispatcher) Dispatch(ctx context.Context, channels []string, config map[string]json.RawMessage, note Notification) DispatchResult {
	result := DispatchResult{
		Sent:   make(map[string]bool, len(channels)),
		Errors: make(map[string]string),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range channels {
		notifier, ok := d.notifiers[name]
		if !ok {
			result.Sent[name] = false
			result.Errors[name] = "channel not configured"
			continue
		}

		wg.Add(1)
		go func(name string, notifier Notifier, cfg json.RawMessage) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			err := notifier.Notify(sendCtx, note, cfg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Sent[name] = false
				result.Errors[name] = err.Error()
				d.logger.Warn().Err(err).Str("channel", name).Str("rule", note.RuleName).Msg("notification failed")
				return
			}
			result.Sent[name] = true
		}(name, notifier, config[name])
	}
	wg.Wait()

	return result
}
