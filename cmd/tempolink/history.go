package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/shaban/tempolink/store"
)

// historyCmd prints the recorded tempo changes from a snapshot database.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the tempo-change history from a snapshot database",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			flags  = cmd.Flags()
			dbPath string
			limit  int
		)
		flags.StringVar(&dbPath, "db", "", "path to the snapshot database")
		flags.IntVar(&limit, "limit", 20, "maximum number of entries")

		if err := flags.Parse(args); err != nil {
			return errors.Wrap(err, "parsing flags")
		}
		if dbPath == "" {
			return errors.New("--db is required")
		}

		st, err := store.Open(dbPath)
		if err != nil {
			return errors.Wrap(err, "opening snapshot store")
		}
		defer st.Close()

		events, err := st.TempoHistory(limit)
		if err != nil {
			return errors.Wrap(err, "reading history")
		}
		for _, ev := range events {
			fmt.Printf("%12d  %7.2f bpm\n", ev.AtMicros, ev.BPM)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(historyCmd)
}
