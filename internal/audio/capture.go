package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// DefaultCaptureCommand records raw 16kHz mono PCM16LE to stdout.
const DefaultCaptureCommand = "arecord -q -f S16_LE -r 16000 -c 1 -t raw -"

// CommandCapture reads microphone PCM from an external capture process.
type CommandCapture struct {
	argv []string
}

func NewCommandCapture(command string) *CommandCapture {
	if strings.TrimSpace(command) == "" {
		command = DefaultCaptureCommand
	}
	return &CommandCapture{argv: strings.Fields(command)}
}

// Run spawns the capture process and feeds ~100ms PCM chunks to sink until
// ctx is cancelled or the process exits.
func (c *CommandCapture) Run(ctx context.Context, sink func(pcm []byte)) error {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio capture: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio capture: %w", err)
	}

	// 100ms at 16kHz mono PCM16
	buf := make([]byte, 3200)
	for {
		n, rerr := io.ReadFull(stdout, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink(chunk)
		}
		if rerr != nil {
			_ = cmd.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("audio capture: read: %w", rerr)
		}
	}
}
