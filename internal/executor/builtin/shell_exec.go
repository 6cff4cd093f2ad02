package builtin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/ai-studio/workflow-core/internal/apperr"
	execctx "github.com/ai-studio/workflow-core/internal/executor"
	"github.com/ai-studio/workflow-core/pkg/models"
)

// ShellExecExecutor spawns `bash -c <command>` in a new process session
// with a cleared environment: on timeout it SIGKILLs
// the entire process group.
type ShellExecExecutor struct{}

func (ShellExecExecutor) Execute(ctx context.Context, nodeID string, node *models.Node, incoming interface{}, _ *execctx.Context) (*models.NodeOutput, error) {
	command := execctx.GetStringDefault(node.Config, "command", "")
	shell := execctx.GetStringDefault(node.Config, "shell", "bash")
	timeoutSec := execctx.GetIntDefault(node.Config, "timeoutSeconds", 30)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	cmd.Env = sanitizedEnv()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if m, ok := incoming.(map[string]interface{}); ok {
		if stdin, ok := m["stdin"].(string); ok {
			cmd.Stdin = strings.NewReader(stdin)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil, apperr.New(apperr.Workflow, fmt.Sprintf("shell_exec %s: timed out after %ds", nodeID, timeoutSec))
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, apperr.Wrap(apperr.Internal, fmt.Sprintf("shell_exec %s: spawn failed", nodeID), err)
		}
	}

	return &models.NodeOutput{Value: map[string]interface{}{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}}, nil
}

// sanitizedEnv clears the environment, keeping only HOME and a minimal PATH.
func sanitizedEnv() []string {
	env := []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	return env
}
