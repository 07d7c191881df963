package commands

import (
	"github.com/spf13/cobra"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <volume> <block>",
		Short: "Show a block device's metadata and per-host status",
		Args:  cobra.ExactArgs(2),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	client, err := adminClient()
	if err != nil {
		return err
	}

	reply, err := client.Call(cmd.Context(), wire.AdminOpInfo, wire.AdminInfoRequest{
		Volume: args[0], Block: args[1], JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}
