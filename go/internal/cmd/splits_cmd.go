package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/splits"
	"github.com/mcdev12/splitkeeper/go/internal/storage"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

var errEmptySplits = errors.New("empty splits are not supported")

// withStore opens the storage stack for the duration of fn.
func (c *cli) withStore(ctx context.Context, fn func(store *storage.Service) error) error {
	st, err := setupStorage(ctx, c.config)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(storage.NewService(st.Active))
}

func (c *cli) newSplitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splits",
		Short: "Manage stored splits",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored splits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				infos, err := store.GetSplitsInfos(cmd.Context())
				if err != nil {
					return err
				}
				current, err := store.LoadSplitsKey(cmd.Context())
				if err != nil {
					return err
				}
				printInfos(cmd, infos, current)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <key>",
		Short: "Show the segments of stored splits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				blob, err := loadBlob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				return printRun(cmd, blob)
			})
		},
	}

	var selectImported bool
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a splits file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read splits: %w", err)
			}
			result := runcodec.Parse(data, args[0], false)
			if !result.ParsedSuccessfully() {
				return fmt.Errorf("couldn't parse the splits: %w", result.Err())
			}
			run := result.Unwrap()
			if run.Len() == 0 {
				return errEmptySplits
			}
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				key, err := store.StoreRun(cmd.Context(), run, "")
				if err != nil {
					return err
				}
				if selectImported {
					if err := store.StoreSplitsKey(cmd.Context(), key); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}
	importCmd.Flags().BoolVar(&selectImported, "select", false, "make the imported splits the current ones")

	var out string
	export := &cobra.Command{
		Use:   "export <key>",
		Short: "Write stored splits to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				blob, err := loadBlob(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := cmd.OutOrStdout().Write(blob)
					return err
				}
				path := out
				if path == "" {
					result := runcodec.Parse(blob, args[0], true)
					if !result.ParsedSuccessfully() {
						return result.Err()
					}
					path = result.Unwrap().ExtendedFileName(true) + ".lss"
				}
				if err := os.WriteFile(filepath.Clean(path), blob, 0o644); err != nil {
					return fmt.Errorf("failed to write splits: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "output file, - for standard output")

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete stored splits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				return store.DeleteSplits(cmd.Context(), args[0])
			})
		},
	}

	cp := &cobra.Command{
		Use:   "copy <key>",
		Short: "Duplicate stored splits under a new key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(store *storage.Service) error {
				key, err := store.CopySplits(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, importCmd, export, del, cp)
	return cmd
}

func loadBlob(ctx context.Context, store *storage.Service, key string) ([]byte, error) {
	blob, err := store.LoadSplits(ctx, key)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, fmt.Errorf("splits %s: %w", key, storage.ErrNotFound)
	}
	return blob, nil
}

func printInfos(cmd *cobra.Command, infos []splits.KeyedInfo, current string) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tKEY\tGAME\tCATEGORY\tREAL TIME\tGAME TIME")
	for _, ki := range infos {
		marker := ""
		if ki.Key == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, ki.Key, ki.Info.Game, ki.Info.Category,
			formatSeconds(ki.Info.RealTime), formatSeconds(ki.Info.GameTime))
	}
	w.Flush()
}

func printRun(cmd *cobra.Command, blob []byte) error {
	result := runcodec.Parse(blob, "", true)
	if !result.ParsedSuccessfully() {
		return result.Err()
	}
	run := result.Unwrap()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s - %s (%d attempts)\n", run.GameName, run.ExtendedCategoryName(true, true, true), run.AttemptCount)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEGMENT\tPB SPLIT\tBEST SEGMENT")
	for _, seg := range run.Segments {
		fmt.Fprintf(w, "%s\t%s\t%s\n", seg.Name,
			formatSpan(seg.PersonalBestSplitTime.RealTime),
			formatSpan(seg.BestSegmentTime.RealTime))
	}
	return w.Flush()
}

func formatSeconds(secs *float64) string {
	if secs == nil {
		return "-"
	}
	return timespan.FromSeconds(*secs).String()
}

func formatSpan(t *timespan.TimeSpan) string {
	if t == nil {
		return "-"
	}
	return t.String()
}
