package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/event"
	"vigil/internal/inference"
	"vigil/internal/sink"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		label   string
		since   string
		until   string
		asJSON  bool
		asLines bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recorded events",
		Example: "  vigil events --limit 20\n" +
			"  vigil events --label person\n" +
			"  vigil events --since 2h\n" +
			"  vigil events --since 2026-05-01T00:00:00Z --until 2026-05-02T00:00:00Z",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			label = inference.NormalizeLabel(label)
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now().UTC()
			var events []*event.Event
			switch {
			case since != "" || until != "":
				from, err := parseTimeFlag(since, now, time.Time{})
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				to, err := parseTimeFlag(until, now, now)
				if err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				events, err = st.ByTimeRange(cmd.Context(), from, to)
				if err != nil {
					return err
				}
				if label != "" {
					events = filterLabel(events, label)
				}
				if len(events) > limit {
					events = events[len(events)-limit:]
				}
			case label != "":
				events, err = st.ByLabel(cmd.Context(), label, limit)
			default:
				events, err = st.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				records := make([]event.Record, 0, len(events))
				for _, ev := range events {
					records = append(records, ev.Record())
				}
				return writeJSON(cmd, records)
			case asLines:
				for _, ev := range events {
					fmt.Fprintln(out, sink.FormatLine(ev))
				}
				return nil
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprintln(out, renderEvents(events))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events")
	cmd.Flags().StringVarP(&label, "label", "l", "", "Only events carrying this label")
	cmd.Flags().StringVar(&since, "since", "", "Start of range: RFC 3339 time or a duration ago (e.g. 2h)")
	cmd.Flags().StringVar(&until, "until", "", "End of range: RFC 3339 time or a duration ago (default now)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	cmd.Flags().BoolVar(&asLines, "lines", false, "Print events in the text log format")
	return cmd
}

func renderEvents(events []*event.Event) string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.CreatedAt().Local().Format("2006-01-02 15:04:05"),
			ev.SourceID(),
			strings.Join(ev.Labels().Sorted(), ", "),
			strconv.FormatFloat(ev.Score(), 'f', 2, 64),
			truncate(ev.Description(), 60),
			ev.ID(),
		})
	}
	return renderTable(
		[]string{"Time", "Source", "Labels", "Score", "Description", "ID"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// parseTimeFlag accepts RFC 3339 timestamps or a duration measured back from
// now.
func parseTimeFlag(value string, now, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor a duration", value)
	}
	if d < 0 {
		d = -d
	}
	return now.Add(-d), nil
}

func filterLabel(events []*event.Event, label string) []*event.Event {
	kept := events[:0]
	for _, ev := range events {
		if ev.Labels().Has(label) {
			kept = append(kept, ev)
		}
	}
	return kept
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
