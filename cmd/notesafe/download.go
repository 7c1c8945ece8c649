package main

import (
	"sync"

	"github.com/spf13/cobra"

	"notesafe/internal/config"
	"notesafe/internal/events"
)

func newDownloadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "download <note-id>",
		Short: "Download and decode all image attachments of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				ch, cancel := a.bus.Subscribe(events.KindProgress, events.KindMediaDownloaded)
				defer cancel()

				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					for ev := range ch {
						switch payload := ev.Payload.(type) {
						case events.Progress:
							if payload.Done {
								_ = writePlain("done (%d items)\n", payload.Total)
							} else {
								_ = writePlain("downloading %d/%d\n", payload.Current+1, payload.Total)
							}
						case events.MediaDownloaded:
							_ = writePlain("  %s available (%d bytes encoded)\n", shortHash(payload.Hash), len(payload.Src))
						}
					}
				}()

				err := a.registry.DownloadImages(cmd.Context(), args[0])
				cancel()
				wg.Wait()
				return err
			})
		},
	}
}
