package main

import (
	"grepl/internal/resolve"

	"github.com/spf13/cobra"
)

var resolveFlags struct {
	reset  bool
	strict bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [--reset] [--strict]",
	Short: "Build timestamped video urls from parsed listing entries.",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		_, err = resolve.New(cfg.Resolve, s, log).Run(cmd.Context(), resolve.Options{
			Reset:  resolveFlags.reset,
			Strict: resolveFlags.strict,
		})
		return err
	},
}

func init() {
	f := resolveCmd.Flags()
	f.BoolVar(&resolveFlags.reset, "reset", false, "Clear resolved videos first")
	f.BoolVar(&resolveFlags.strict, "strict", false, "Stop at the first entry that cannot be resolved")
	rootCmd.AddCommand(resolveCmd)
}
