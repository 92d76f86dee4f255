package source

import (
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/format"
)

// NewPipeSource opens a named pipe for reading PCM. If create is true
// and the path does not already exist, a FIFO is created first (mode
// 0600). EOF on a pipe (writer closed) is terminal: the source goes
// Idle and Run returns, matching a pipe writer's exit being a real
// stream end rather than something to loop.
func NewPipeSource(path string, create bool, f format.SampleFormat, periodMs int, logger *log.Logger) (Source, error) {
	if create {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := syscall.Mkfifo(path, 0600); err != nil {
				return nil, fmt.Errorf("source: mkfifo %s: %w", path, err)
			}
		}
	}
	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("source: open pipe %s: %w", path, err)
	}
	return newStream(file, f, periodMs, nil, logger), nil
}
