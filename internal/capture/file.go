// Package capture implements the on-disk waveform capture format and the
// latest-capture registry. A capture file is an append-only sequence of
// fixed-header records; a file is safe for concurrent reads only after its
// writer has been closed.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"daq-console/internal/domain"
)

// ErrWrite is returned when the underlying file rejects an appended record.
var ErrWrite = errors.New("capture write failed")

// ErrCorruptFile is returned when a capture file cannot be parsed.
var ErrCorruptFile = errors.New("corrupt capture file")

var fileMagic = [4]byte{'D', 'Q', 'C', 'F'}

const (
	formatVersion = uint16(1)
	headerSize    = 6

	// maxRecordSamples bounds a single record so a garbled length field
	// cannot trigger a huge allocation on read.
	maxRecordSamples = 1 << 22

	// FileExt is the capture file extension.
	FileExt = ".dqc"
)

// Filename builds a timestamped capture file name from a base path, matching
// the base_YYYYMMDDTHHMMSSZ naming convention. seq disambiguates segments
// rotated within the same second; seq 0 omits the suffix.
func Filename(base string, now time.Time, seq int) string {
	stamp := now.UTC().Format("20060102T150405") + "Z"
	if seq > 0 {
		return fmt.Sprintf("%s_%s_%d%s", base, stamp, seq, FileExt)
	}
	return base + "_" + stamp + FileExt
}

// Writer appends event records to a single capture file. It is owned by one
// acquisition worker at a time and is not safe for concurrent use.
type Writer struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	written int64
	closed  bool
}

// OpenWriter creates the capture file and writes the format header.
func OpenWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	buf := bufio.NewWriter(file)
	if _, err := buf.Write(fileMagic[:]); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := binary.Write(buf, binary.LittleEndian, formatVersion); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return &Writer{
		path:    path,
		file:    file,
		buf:     buf,
		written: headerSize,
	}, nil
}

// Path returns the capture file path.
func (w *Writer) Path() string {
	return w.path
}

// BytesWritten returns the number of bytes appended so far, including the
// header. Used for size-based file rotation.
func (w *Writer) BytesWritten() int64 {
	return w.written
}

// Append writes one event record. A failure here is fatal to the run.
func (w *Writer) Append(event domain.Event) error {
	if w.closed {
		return fmt.Errorf("%w: writer closed", ErrWrite)
	}

	hdr := make([]byte, 14)
	binary.LittleEndian.PutUint64(hdr[0:8], event.Timestamp)
	binary.LittleEndian.PutUint16(hdr[8:10], event.Channel)
	binary.LittleEndian.PutUint32(hdr[10:14], uint32(len(event.Samples)))
	if _, err := w.buf.Write(hdr); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if err := binary.Write(w.buf, binary.LittleEndian, event.Samples); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	w.written += int64(len(hdr)) + int64(2*len(event.Samples))
	return nil
}

// Close flushes and closes the file. It is idempotent so failure-path
// cleanup can call it unconditionally.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return fmt.Errorf("%w: %w", ErrWrite, flushErr)
	}
	return closeErr
}

// Reader iterates event records of a finalized capture file.
type Reader struct {
	file *os.File
	buf  *bufio.Reader
}

// OpenReader opens a capture file and validates its header.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}

	buf := bufio.NewReader(file)
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(buf, header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: short header", ErrCorruptFile)
	}
	if [4]byte(header[0:4]) != fileMagic {
		_ = file.Close()
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptFile)
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != formatVersion {
		_ = file.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, v)
	}

	return &Reader{file: file, buf: buf}, nil
}

// Next returns the next event record, or io.EOF at a clean end of file.
func (r *Reader) Next() (domain.Event, error) {
	hdr := make([]byte, 14)
	if _, err := io.ReadFull(r.buf, hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Event{}, io.EOF
		}
		return domain.Event{}, fmt.Errorf("%w: truncated record header", ErrCorruptFile)
	}

	n := binary.LittleEndian.Uint32(hdr[10:14])
	if n > maxRecordSamples {
		return domain.Event{}, fmt.Errorf("%w: record claims %d samples", ErrCorruptFile, n)
	}

	event := domain.Event{
		Timestamp: binary.LittleEndian.Uint64(hdr[0:8]),
		Channel:   binary.LittleEndian.Uint16(hdr[8:10]),
		Samples:   make([]uint16, n),
	}
	if err := binary.Read(r.buf, binary.LittleEndian, event.Samples); err != nil {
		return domain.Event{}, fmt.Errorf("%w: truncated samples", ErrCorruptFile)
	}

	return event, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
