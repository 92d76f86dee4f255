package source

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/format"
)

// processReader wraps a running subprocess's stdout so Close also
// reaps the process instead of leaving a zombie behind.
type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processReader) Close() error {
	err := p.ReadCloser.Close()
	_ = p.cmd.Wait()
	return err
}

// NewProcessSource launches command, streaming its stdout as PCM. The
// subprocess exiting is terminal (matches a pipe/file whose producer
// stopped feeding it): the source goes Idle and Run returns.
func NewProcessSource(name string, args []string, f format.SampleFormat, periodMs int, logger *log.Logger) (Source, error) {
	cmd := exec.Command(name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source: start %s: %w", name, err)
	}
	return newStream(&processReader{ReadCloser: stdout, cmd: cmd}, f, periodMs, nil, logger), nil
}
