package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"grepl/internal/clip"

	"github.com/spf13/cobra"
)

var clipFlags struct {
	duration int
	dir      string
	bw       bool
}

var clipCmd = &cobra.Command{
	Use:   "clip <url>",
	Short: "Download a short, silent, low resolution clip starting at the url's t= offset.",
	Example: `  grepl clip 'https://www.youtube.com/watch?v=VKpxTsdnPiI&t=121s'
  grepl clip --bw -d 30 'https://youtu.be/Szj2-YS3J2o?t=115'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cc := cfg.Clip
		if cmd.Flags().Changed("duration") {
			cc.Duration = clipFlags.duration
		}
		if cmd.Flags().Changed("output-dir") {
			cc.Dir = clipFlags.dir
		}

		d := clip.New(cc, clip.ExecRunner{}, log)
		path, err := d.DownloadURL(cmd.Context(), args[0], clipFlags.bw)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Downloaded clip to: %s\n", path)
		return nil
	},
}

var frameOut string

var frameCmd = &cobra.Command{
	Use:   "frame <video> <seconds>",
	Short: "Save the frame at a timestamp of a local video as a PNG.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := strconv.ParseFloat(args[1], 64)
		if err != nil || at < 0 {
			return fmt.Errorf("invalid timestamp %q", args[1])
		}
		out := frameOut
		if out == "" {
			out = fmt.Sprintf("%s_%s.png", strings.TrimSuffix(args[0], filepath.Ext(args[0])), args[1])
		}

		d := clip.New(cfg.Clip, clip.ExecRunner{}, log)
		if err := d.Frame(cmd.Context(), args[0], at, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote frame to: %s\n", out)
		return nil
	},
}

func init() {
	f := clipCmd.Flags()
	f.IntVarP(&clipFlags.duration, "duration", "d", 60, "Clip length in seconds")
	f.StringVarP(&clipFlags.dir, "output-dir", "o", "clips", "Output directory")
	f.BoolVar(&clipFlags.bw, "bw", false, "Convert the clip to black and white")
	rootCmd.AddCommand(clipCmd)

	frameCmd.Flags().StringVarP(&frameOut, "out", "o", "", "PNG to write (default <video>_<seconds>.png)")
	rootCmd.AddCommand(frameCmd)
}
