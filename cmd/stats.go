package main

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and per-session capture health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		counts, err := s.Counts(cmd.Context())
		if err != nil {
			return err
		}
		sessions, err := s.Sessions(cmd.Context())
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Table", "Rows"})
		t.AppendRow(table.Row{"raw_page", counts.RawPages})
		t.AppendRow(table.Row{"raw_page (distinct content)", counts.DistinctContent})
		t.AppendRow(table.Row{"parsed_item", counts.ParsedItems})
		t.AppendRow(table.Row{"resolved_video", counts.ResolvedVideos})
		t.SetStyle(table.StyleRounded)
		t.Render()

		if len(sessions) == 0 {
			return nil
		}

		st := table.NewWriter()
		st.SetOutputMirror(cmd.OutOrStdout())
		st.AppendHeader(table.Row{"Session", "Snapshot", "Pages", "Rows", "Distinct", "Expected"})
		for _, sess := range sessions {
			st.AppendRow(table.Row{
				sess.SessionID,
				sess.SnapshotTS.Local().Format(time.DateTime),
				sess.Pages,
				sess.Rows,
				sess.DistinctContent,
				sess.Expected,
			})
		}
		st.SetStyle(table.StyleRounded)
		st.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
