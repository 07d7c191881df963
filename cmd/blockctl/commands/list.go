package commands

import (
	"github.com/spf13/cobra"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

var listAll bool

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <volume>",
		Short: "List every block device in a volume",
		Args:  cobra.ExactArgs(1),
		RunE:  runList,
	}
	cmd.Flags().BoolVar(&listAll, "all", false, "include blocks still mid-creation")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := adminClient()
	if err != nil {
		return err
	}

	reply, err := client.Call(cmd.Context(), wire.AdminOpList, wire.AdminListRequest{
		Volume: args[0], All: listAll, JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}
