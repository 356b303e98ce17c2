package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcdev12/splitkeeper/go/clients/splitsio"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
)

func (c *cli) newSplitsIOCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splitsio",
		Short: "Exchange splits with splits.io",
	}

	upload := &cobra.Command{
		Use:   "upload <key>",
		Short: "Upload stored splits and print the claim URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := splitsio.NewSplitsIOClient(c.config.SplitsIOURL)
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				blob, err := loadBlob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				claim, err := client.UploadLss(cmd.Context(), blob)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), claim)
				return nil
			})
		},
	}

	var selectDownloaded bool
	download := &cobra.Command{
		Use:   "download <id or url>",
		Short: "Download splits and store them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := splitsio.NewSplitsIOClient(c.config.SplitsIOURL)
			run, err := client.DownloadByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if run.Len() == 0 {
				return errEmptySplits
			}
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				key, err := store.StoreRun(cmd.Context(), run, "")
				if err != nil {
					return err
				}
				if selectDownloaded {
					if err := store.StoreSplitsKey(cmd.Context(), key); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
	download.Flags().BoolVar(&selectDownloaded, "select", false, "make the downloaded splits the current ones")

	cmd.AddCommand(upload, download)
	return cmd
}
