package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vigil/internal/logging"
	"vigil/internal/storage"
)

type storageReport struct {
	Stats       storage.Stats    `json:"stats"`
	EventCounts map[string]int64 `json:"event_counts"`
	Events      int64            `json:"events"`
	Rotated     int64            `json:"rotated_bytes,omitempty"`
}

func newStorageCommand(ctx *commandContext) *cobra.Command {
	var rotate bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "storage",
		Short: "Show storage usage per day shard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			guardian, err := storage.NewGuardian(cfg.Paths.DataDir, cfg.Storage, logging.NewNop(),
				storage.WithOnRotate(func(ctx context.Context, shard string) error {
					_, err := st.DeleteShard(ctx, shard)
					return err
				}),
			)
			if err != nil {
				return err
			}

			var report storageReport
			if rotate {
				report.Rotated, err = guardian.Rotate(cmd.Context())
				if err != nil {
					return err
				}
			}
			report.Stats, err = guardian.CheckUsage()
			if err != nil {
				return err
			}
			report.EventCounts, err = st.ShardCounts(cmd.Context())
			if err != nil {
				return err
			}
			report.Events, err = st.Count(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStorage(cfg.Paths.DataDir, report, rotate))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "Delete the oldest shards now if usage is above the rotation target")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func renderStorage(dataDir string, r storageReport, rotated bool) string {
	s := r.Stats
	summary := [][2]string{
		{"Data directory", dataDir},
		{"Used", fmt.Sprintf("%s of %s (%.1f%%)", humanize.IBytes(uint64(s.TotalBytes)), humanize.IBytes(uint64(s.CeilingBytes)), s.Percent)},
		{"Over ceiling", yesNo(s.OverLimit)},
		{"Events", strconv.FormatInt(r.Events, 10)},
	}
	if s.FSTotalBytes > 0 {
		summary = append(summary, [2]string{"Filesystem free", humanize.IBytes(s.FreeBytes) + " of " + humanize.IBytes(s.FSTotalBytes)})
	}
	if rotated {
		summary = append(summary, [2]string{"Rotated", humanize.IBytes(uint64(r.Rotated))})
	}

	rows := make([][]string, 0, len(s.Shards))
	for _, shard := range s.Shards {
		rows = append(rows, []string{
			shard.Name,
			humanize.IBytes(uint64(shard.Bytes)),
			strconv.FormatInt(r.EventCounts[shard.Name], 10),
		})
	}
	out := renderSummary(summary)
	if len(rows) > 0 {
		out += "\n" + renderTable([]string{"Shard", "Size", "Events"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight})
	}
	return out
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
