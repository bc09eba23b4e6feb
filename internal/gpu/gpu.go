// Package gpu reports accelerator utilisation by shelling out to a vendor tool.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

type Probe interface {
	Utilization(ctx context.Context) (string, error)
}

// Command runs an external utility, nvidia-smi by default, and returns its
// raw standard output.
type Command struct {
	Name string
	Args []string
}

func NewCommand(commandLine string) *Command {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return &Command{Name: "nvidia-smi"}
	}
	return &Command{Name: fields[0], Args: fields[1:]}
}

func (c *Command) Utilization(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %w: %s", c.Name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", c.Name, err)
	}
	return string(out), nil
}
