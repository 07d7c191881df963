package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blockd/blockd/pkg/blockrpc/wire"
)

var (
	createHosts    string
	createMpath    int
	createSize     int64
	createAuthMode bool
	createPrealloc bool
)

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <volume> <block>",
		Short: "Create a new block device",
		Args:  cobra.ExactArgs(2),
		RunE:  runCreate,
	}
	cmd.Flags().StringVar(&createHosts, "hosts", "", "comma-separated candidate host list (required)")
	cmd.Flags().IntVar(&createMpath, "ha", 1, "replica count (mpath); must be <= number of hosts")
	cmd.Flags().Int64Var(&createSize, "size", 0, "block size in bytes (required)")
	cmd.Flags().BoolVar(&createAuthMode, "auth", false, "enable CHAP authentication")
	cmd.Flags().BoolVar(&createPrealloc, "prealloc", false, "fully preallocate the backing file")
	_ = cmd.MarkFlagRequired("hosts")
	_ = cmd.MarkFlagRequired("size")
	return cmd
}

func runCreate(cmd *cobra.Command, args []string) error {
	hosts := splitHosts(createHosts)
	if createMpath > len(hosts) {
		return fmt.Errorf("ha (%d) exceeds host count (%d)", createMpath, len(hosts))
	}

	client, err := adminClient()
	if err != nil {
		return err
	}

	reply, err := client.Call(cmd.Context(), wire.AdminOpCreate, wire.AdminCreateRequest{
		Volume: args[0], Block: args[1], Mpath: int32(createMpath), Hosts: hosts,
		Size: createSize, AuthMode: createAuthMode, Prealloc: createPrealloc, JSON: jsonOutput,
	})
	if err != nil {
		return err
	}
	emit(reply)
	return nil
}

func splitHosts(csv string) []string {
	parts := strings.Split(csv, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		if h := strings.TrimSpace(p); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
