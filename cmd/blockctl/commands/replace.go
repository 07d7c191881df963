package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockd/blockd/internal/cli/prompt"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

var (
	replaceOldNode string
	replaceNewNode string
	replaceForce   bool
)

func newReplaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace <volume> <block>",
		Short: "Migrate a block device from one node to another",
		Args:  cobra.ExactArgs(2),
		RunE:  runReplace,
	}
	cmd.Flags().StringVar(&replaceOldNode, "old-node", "", "node being replaced (required)")
	cmd.Flags().StringVar(&replaceNewNode, "new-node", "", "node taking over (required)")
	cmd.Flags().BoolVarP(&replaceForce, "force", "f", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("old-node")
	_ = cmd.MarkFlagRequired("new-node")
	return cmd
}

func runReplace(cmd *cobra.Command, args []string) error {
	if !replaceForce && !jsonOutput {
		ok, err := prompt.Confirm(fmt.Sprintf("replace %s with %s for block %s/%s", replaceOldNode, replaceNewNode, args[0], args[1]), false)
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

	reply, err := client.Call(cmd.Context(), wire.AdminOpReplace, wire.AdminReplaceRequest{
		Volume: args[0], Block: args[1], OldNode: replaceOldNode, NewNode: replaceNewNode,
		Force: replaceForce, JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}
