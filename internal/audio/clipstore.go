package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"impromptu/internal/ports"
)

// PCMMimeType describes raw little-endian 16-bit samples.
const PCMMimeType = "audio/pcm"

var extensions = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mp4":  ".m4a",
	PCMMimeType:  ".wav",
}

// FileClipStore writes each recording to its own file under dir.
type FileClipStore struct {
	dir  string
	keep bool
}

// NewFileClipStore creates dir if needed. When keep is set, Release leaves
// files on disk so history entries stay playable.
func NewFileClipStore(dir string, keep bool) (*FileClipStore, error) {
	if dir == "" {
		return nil, errors.New("recordings directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return &FileClipStore{dir: dir, keep: keep}, nil
}

func (s *FileClipStore) Save(ctx context.Context, mimeType string, chunks [][]byte) (ports.Clip, error) {
	if err := ctx.Err(); err != nil {
		return ports.Clip{}, err
	}
	base, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base, params = baseType(mimeType), nil
	}
	ext, ok := extensions[base]
	if !ok {
		ext = ".bin"
	}

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return ports.Clip{}, fmt.Errorf("failed to create clip: %w", err)
	}

	size, writeErr := writeClip(f, base, params, chunks)
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return ports.Clip{}, fmt.Errorf("failed to write clip: %w", err)
	}
	return ports.Clip{URI: fileURI(path), Size: size}, nil
}

// Release deletes the clip unless recordings are kept. Missing files are ignored.
func (s *FileClipStore) Release(uri string) error {
	if s.keep {
		return nil
	}
	path, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func writeClip(w io.Writer, base string, params map[string]string, chunks [][]byte) (int64, error) {
	var payload int64
	for _, chunk := range chunks {
		payload += int64(len(chunk))
	}

	bw := bufio.NewWriter(w)
	var written int64
	if base == PCMMimeType {
		h := wavHeader{
			SampleRate: intParam(params, "rate", 16000),
			Channels:   intParam(params, "channels", 1),
			DataBytes:  uint32(payload),
		}
		if err := h.write(bw); err != nil {
			return 0, err
		}
		written += wavHeaderSize
	}
	for _, chunk := range chunks {
		n, err := bw.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, bw.Flush()
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// PathFromURI resolves a file:// clip URI to a local path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid clip uri %q: %w", uri, err)
	}
	if u.Scheme != "file" || u.Path == "" {
		return "", fmt.Errorf("unsupported clip uri %q", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

func intParam(params map[string]string, key string, fallback int) int {
	if v, err := strconv.Atoi(params[key]); err == nil && v > 0 {
		return v
	}
	return fallback
}

const wavHeaderSize = 44

type wavHeader struct {
	SampleRate int
	Channels   int
	DataBytes  uint32
}

func (h wavHeader) write(w io.Writer) error {
	const bitsPerSample = 16
	blockAlign := h.Channels * bitsPerSample / 8
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36 + h.DataBytes),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1),
		uint16(h.Channels),
		uint32(h.SampleRate),
		uint32(h.SampleRate * blockAlign),
		uint16(blockAlign),
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		h.DataBytes,
	}
	for _, field := range fields {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return err
		}
	}
	return nil
}

// readWAV returns the PCM payload of a 16-bit PCM WAV file.
func readWAV(data []byte) (wavHeader, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavHeader{}, nil, errors.New("not a wav file")
	}
	var h wavHeader
	haveFormat := false
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) {
			end = len(data)
		}
		switch id {
		case "fmt ":
			if end-body < 16 {
				return wavHeader{}, nil, errors.New("short wav format chunk")
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return wavHeader{}, nil, fmt.Errorf("unsupported wav encoding %d", format)
			}
			if bits := binary.LittleEndian.Uint16(data[body+14:]); bits != 16 {
				return wavHeader{}, nil, fmt.Errorf("unsupported wav sample size %d", bits)
			}
			h.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			h.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return wavHeader{}, nil, errors.New("wav data before format")
			}
			h.DataBytes = uint32(end - body)
			return h, data[body:end], nil
		}
		off = end + size%2
	}
	return wavHeader{}, nil, errors.New("wav file has no data chunk")
}
