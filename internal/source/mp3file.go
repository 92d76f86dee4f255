package source

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"
	"github.com/snapsync/snapsync-go/internal/format"
)

// mp3Reader adapts a go-mp3 decoder (which already emits interleaved
// 16-bit little-endian PCM) to the reader interface, closing the
// underlying file rather than the decoder itself.
type mp3Reader struct {
	file    *os.File
	decoder *mp3.Decoder
}

func (r *mp3Reader) Read(buf []byte) (int, error) { return r.decoder.Read(buf) }
func (r *mp3Reader) Close() error                 { return r.file.Close() }

// NewMP3FileSource decodes path with go-mp3 and loops it on EOF,
// producing PCM periods on the Source interface. go-mp3 always
// decodes to stereo 16-bit PCM; the file's own sample rate is kept.
// Grounded on the teacher's internal/server/audio_source.go MP3Source,
// adapted from a blocking Read(samples []int32) method to the
// poll-driven stream engine the rest of this package uses.
func NewMP3FileSource(path string, periodMs int, logger *log.Logger) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	sampleFormat := format.SampleFormat{Rate: uint32(dec.SampleRate()), Bits: 16, Channels: 2}
	r := &mp3Reader{file: f, decoder: dec}

	onEOF := func() (reader, error) {
		if _, err := r.file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		newDec, err := mp3.NewDecoder(r.file)
		if err != nil {
			return nil, err
		}
		r.decoder = newDec
		return r, nil
	}

	return newStream(r, sampleFormat, periodMs, onEOF, logger), nil
}
