package main

import (
	"fmt"
	"os"
	"time"

	"roundify/client"
	"roundify/models"
	"roundify/probe"
	"roundify/routes"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newProbeCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Print the metadata ffprobe reports for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			result, err := probe.Inspect(cmd.Context(), cfg.Encoding.FFprobePath, args[0])
			if err != nil {
				return err
			}
			meta, err := result.Meta()
			if err != nil {
				return err
			}
			size := meta.Size
			if size == 0 {
				if info, err := os.Stat(args[0]); err == nil {
					size = info.Size()
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "duration: %.2fs\n", meta.Duration)
			fmt.Fprintf(out, "resolution: %dx%d\n", meta.Width, meta.Height)
			fmt.Fprintf(out, "size: %s\n", humanize.IBytes(uint64(size)))
			return nil
		},
	}
}

func newClipCommand() *cobra.Command {
	var (
		server  string
		opts    models.ClipOptions
		maxClip float64
	)
	cmd := &cobra.Command{
		Use:   "clip FILE",
		Short: "Turn a local video into a clip on a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(server)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			session := client.NewSession(c.MaxUploadBytes, nil)
			res, err := c.Clip(cmd.Context(), session, args[0], opts, maxClip, func(s *client.Session, ev models.Event) {
				switch ev.Type {
				case models.EventQueued:
					fmt.Fprintf(out, "queue position %d\n", ev.Position)
				case models.EventStatus:
					fmt.Fprintf(out, "%s\n", ev.Status)
				case models.EventProgress:
					fmt.Fprintf(out, "\r%3.0f%%", s.Progress()*100)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\ndownload: %s\nvalid for: %s\n", res.Download, time.Duration(res.TTL)*time.Second)
			if opts.Delivers() {
				fmt.Fprintf(out, "telegram: %t\n", res.Telegram)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8000", "Server base URL")
	cmd.Flags().IntVar(&opts.Size, "size", 640, "Output side in pixels")
	cmd.Flags().Float64Var(&opts.Duration, "duration", 0, "Clip length in seconds (default: whole video up to --max-clip)")
	cmd.Flags().Float64Var(&opts.Offset, "offset", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&maxClip, "max-clip", 60, "Longest clip the server accepts")
	cmd.Flags().StringVar(&opts.Encoder, "encoder", "", "Encoder name (round or trim)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "Telegram bot token")
	cmd.Flags().StringVar(&opts.Chat, "chat", "", "Telegram chat id")
	cmd.Flags().StringVar(&opts.StorageKey, "storage-key", "", "Mirror the clip to registered storage")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := routes.BuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "roundify %s (%s, %s, built %s)\n", info.Version, info.GitCommit, info.GoVersion, info.BuildTime)
			return nil
		},
	}
}
