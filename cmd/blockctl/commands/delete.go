package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockd/blockd/internal/cli/prompt"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

var (
	deleteUnlink bool
	deleteForce  bool
)

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <volume> <block>",
		Short: "Delete a block device",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelete,
	}
	cmd.Flags().BoolVar(&deleteUnlink, "unlink", true, "remove the backing file after cleanup")
	cmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip the reachability pre-probe and confirmation prompt")
	return cmd
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteForce && !jsonOutput {
		ok, err := prompt.Confirm(fmt.Sprintf("delete block %s/%s", args[0], args[1]), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("aborted")
			return nil
		}
	}

	client, err := adminClient()
	if err != nil {
		return err
	}

	reply, err := client.Call(cmd.Context(), wire.AdminOpDelete, wire.AdminDeleteRequest{
		Volume: args[0], Block: args[1], Unlink: deleteUnlink, Force: deleteForce, JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}
