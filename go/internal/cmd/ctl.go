package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/splitkeeper/go/internal/controlapi"
	"github.com/mcdev12/splitkeeper/go/internal/remote"
)

func (c *cli) newCtlCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "ctl <command> [arg]",
		Short: "Send a command to a running timer",
		Long: "Send a command to a running timer over the control API.\n\n" +
			"Commands: state, splits, " + strings.Join(remote.Commands(), ", "),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = fmt.Sprintf("http://localhost:%d", c.config.ControlPort)
			}
			client := controlapi.NewClient(http.DefaultClient, strings.TrimSuffix(addr, "/"))

			var (
				res *structpb.Struct
				err error
			)
			switch args[0] {
			case "state":
				res, err = client.GetState(cmd.Context())
			case "splits":
				res, err = client.ListSplits(cmd.Context())
			default:
				res, err = client.Execute(cmd.Context(), strings.Join(args, " "))
			}
			if err != nil {
				return err
			}

			out, err := protojson.MarshalOptions{Multiline: true}.Marshal(res)
			if err != nil {
				return fmt.Errorf("failed to format response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "control API base URL (default http://localhost:$CONTROL_PORT)")
	return cmd
}
