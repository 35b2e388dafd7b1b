package audio

import (
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPlaybackCommand plays raw 48kHz mono PCM16LE from stdin.
const DefaultPlaybackCommand = "aplay -q -f S16_LE -r 48000 -c 1 -t raw -"

// CommandPlayer delivers PCM to the audio device by piping it into an
// external playback process. Frames are buffered and written by a dedicated
// goroutine; Reset drops the queue and kills the process so interruption is
// immediate, with the process respawned lazily on the next write.
type CommandPlayer struct {
	argv   []string
	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stopped bool
}

// NewCommandPlayer parses the playback command line and starts the writer.
// An empty command selects the default.
func NewCommandPlayer(command string) *CommandPlayer {
	if strings.TrimSpace(command) == "" {
		command = DefaultPlaybackCommand
	}
	p := &CommandPlayer{
		argv:   strings.Fields(command),
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
	go p.writer()
	return p
}

// WritePCM queues 48kHz mono PCM16LE bytes for playback. When the queue is
// full the oldest frame is dropped rather than blocking the speech stream.
func (p *CommandPlayer) WritePCM(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	b := make([]byte, len(pcm))
	copy(b, pcm)
	for {
		select {
		case p.frames <- b:
			return
		default:
			select {
			case <-p.frames:
			default:
			}
		}
	}
}

// FlushTail gives the device time to drain the last queued frames.
func (p *CommandPlayer) FlushTail() {
	deadline := time.Now().Add(2 * time.Second)
	for len(p.frames) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

// Reset drops queued frames and kills the playback process immediately.
func (p *CommandPlayer) Reset() {
	for {
		select {
		case <-p.frames:
		default:
			p.killProcess()
			return
		}
	}
}

// Close stops the writer and the playback process.
func (p *CommandPlayer) Close() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.stopCh)
	p.killProcess()
}

func (p *CommandPlayer) writer() {
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frames:
			w, err := p.ensureProcess()
			if err != nil {
				log.Error().Err(err).Msg("audio: playback process unavailable, dropping frame")
				continue
			}
			if _, err := w.Write(frame); err != nil {
				log.Warn().Err(err).Msg("audio: write failed, restarting playback process")
				p.killProcess()
			}
		}
	}
}

func (p *CommandPlayer) ensureProcess() (io.Writer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin != nil {
		return p.stdin, nil
	}
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.cmd = cmd
	p.stdin = stdin
	go func() { _ = cmd.Wait() }()
	return stdin, nil
}

func (p *CommandPlayer) killProcess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin != nil {
		_ = p.stdin.Close()
		p.stdin = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cmd = nil
}
