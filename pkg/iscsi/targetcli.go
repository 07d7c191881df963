package iscsi

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// TargetCLI drives LIO via the targetcli-style shell interface the original
// gluster-block peer daemon shells out to. It builds one targetcli argv per
// Action and reports the command's exit code and combined output verbatim.
type TargetCLI struct {
	binary  string
	host    string
	port    int
	timeout time.Duration
}

// NewTargetCLI returns a Configurator that shells out to binary (normally
// "targetcli") to apply changes, reporting a portal of host:port.
func NewTargetCLI(binary, host string, port int, timeout time.Duration) *TargetCLI {
	if binary == "" {
		binary = "targetcli"
	}
	return &TargetCLI{binary: binary, host: host, port: port, timeout: timeout}
}

func (t *TargetCLI) Configure(req Request) (int, string) {
	args, err := t.argsFor(req)
	if err != nil {
		return 1, err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), out.String()
		}
		return 1, fmt.Sprintf("%s: %v", out.String(), err)
	}
	return 0, out.String()
}

func (t *TargetCLI) Portal() string { return PortalString(t.host, t.port) }

func (t *TargetCLI) IQN(volume, block string) string {
	return IQNFor("com.blockd", volume, block)
}

// argsFor builds the targetcli argv for a single configuration action.
// Each action is a one-shot invocation rather than an interactive session,
// matching how the peer daemon is expected to script targetcli.
func (t *TargetCLI) argsFor(req Request) ([]string, error) {
	iqn := t.IQN(req.Volume, req.Block)
	backstore := fmt.Sprintf("/backstores/fileio/%s-%s", req.Volume, req.Block)

	switch req.Action {
	case ActionExport:
		return []string{
			backstore, "create",
			fmt.Sprintf("file_or_dev=%s", req.Path),
			fmt.Sprintf("size=%d", req.Size),
		}, nil
	case ActionUnexport:
		return []string{fmt.Sprintf("/iscsi/%s", iqn), "delete"}, nil
	case ActionEnableAuth:
		return []string{
			fmt.Sprintf("/iscsi/%s/tpg1", iqn), "set", "attribute", "authentication=1",
			fmt.Sprintf("userid=%s", req.Volume+"-"+req.Block),
			fmt.Sprintf("password=%s", req.Passwd),
		}, nil
	case ActionDisableAuth:
		return []string{fmt.Sprintf("/iscsi/%s/tpg1", iqn), "set", "attribute", "authentication=0"}, nil
	default:
		return nil, fmt.Errorf("unknown iscsi action %q", req.Action)
	}
}
