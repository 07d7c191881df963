package commands

import (
	"github.com/spf13/cobra"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

var modifyAuthMode bool

func newModifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modify <volume> <block>",
		Short: "Toggle CHAP authentication on a block device",
		Args:  cobra.ExactArgs(2),
		RunE:  runModify,
	}
	cmd.Flags().BoolVar(&modifyAuthMode, "auth", true, "enable (true) or disable (false) authentication")
	return cmd
}

func runModify(cmd *cobra.Command, args []string) error {
	client, err := adminClient()
	if err != nil {
		return err
	}

	reply, err := client.Call(cmd.Context(), wire.AdminOpModify, wire.AdminModifyRequest{
		Volume: args[0], Block: args[1], AuthMode: modifyAuthMode, JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}
