package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Rules prints all configured alert rules.
func (a *App) Rules(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rules, err := store.ListRules(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		fmt.Fprintln(os.Stdout, "no rules configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tPair\tTF\tUpper\tLower\tCooldown\tStatus\tTriggers\tLast Triggered")

	for _, rule := range rules {
		fmt.Fprintf(
			writer,
			"%s\t%s/%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rule.Name,
			rule.Symbol1,
			rule.Symbol2,
			rule.Timeframe,
			formatThreshold(rule.ThresholdUpper),
			formatThreshold(rule.ThresholdLower),
			rule.Cooldown,
			rule.Status,
			rule.TriggerCount,
			formatLastTriggered(rule.LastTriggered),
		)
	}

	writer.Flush()
	return nil
}

func formatThreshold(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func formatLastTriggered(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
