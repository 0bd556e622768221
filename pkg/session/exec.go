package session

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

const plotTimeout = 30 * time.Second

func runPlot(ctx context.Context, argv []string) error {
	ctx, cancel := context.WithTimeout(ctx, plotTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", argv[0], err, out)
	}
	return nil
}
