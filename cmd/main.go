package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"grepl/internal/config"
	"grepl/internal/store"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log = logrus.New()

	configPath string
	dbPath     string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "grepl",
	Short: "grepl captures a video listing, parses it, resolves video urls and downloads clips.",
	Long: `Each stage is run by hand and reads what the previous one stored:

  grepl capture   scroll the listing in a browser and store page snapshots
  grepl parse     extract listing entries from stored snapshots
  grepl resolve   build timestamped video urls from parsed entries
  grepl clip URL  download a short clip starting at the url's t= offset`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			cfg.DBPath = dbPath
		}
		if debug {
			cfg.Debug = true
		}

		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetOutput(os.Stderr)
		if cfg.Debug {
			log.SetLevel(logrus.DebugLevel)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFile, "Config file; a .local sibling overrides it")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Store file, or a libsql:// url (default outlierdb.sqlite)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func openStore(ctx context.Context) (*store.Store, error) {
	log.Debugf("Opening store %s", cfg.DBPath)
	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
