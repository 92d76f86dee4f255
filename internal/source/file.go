package source

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/snapsync/snapsync-go/internal/format"
)

// NewFileSource opens a regular file of raw PCM and loops it: on EOF
// it seeks back to the start rather than terminating, so a static
// file behaves like a continuous source. Grounded on the teacher's
// MP3Source.Read, which re-seeks and re-decodes on io.EOF instead of
// ending the stream.
func NewFileSource(path string, f format.SampleFormat, periodMs int, logger *log.Logger) (Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open file %s: %w", path, err)
	}
	onEOF := func() (reader, error) {
		if _, err := file.Seek(0, 0); err != nil {
			return nil, err
		}
		return file, nil
	}
	return newStream(file, f, periodMs, onEOF, logger), nil
}
