// Package commands implements blockctl's create/delete/modify/replace/list/info
// command tree, every one a thin admin RPC call against a manager.
package commands

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/blockd/blockd/pkg/blockrpc"
	"github.com/blockd/blockd/pkg/blockrpc/wire"
	"github.com/blockd/blockd/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile    string
	serverAddr string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "blockctl",
	Short: "Administer block-storage devices across a blockd cluster",
	Long: `blockctl talks to a blockd manager's admin listener to create,
delete, modify, replace, list, and inspect iSCSI-backed blocks.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "manager admin address (host:port), overrides config")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "render command output as JSON")

	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newModifyCmd())
	rootCmd.AddCommand(newReplaceCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
}

// adminClient resolves the manager admin address from --server or config
// and returns a client ready to dial it.
func adminClient() (*blockrpc.AdminClient, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		addr = cfg.RPC.AdminAddr
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid manager address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid manager port in %q: %w", addr, err)
	}
	if host == "" {
		host = "127.0.0.1"
	}

	return blockrpc.NewAdminClient(host, port, 5*time.Second, 60*time.Second), nil
}

// emit prints the manager's pre-rendered reply and exits with its exit
// code, so blockctl never needs to understand the render or orchestrator
// packages itself.
func emit(reply wire.AdminReply) {
	fmt.Println(reply.Output)
	os.Exit(int(reply.ExitCode))
}
