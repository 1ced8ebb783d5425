package playback

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

const (
	// recordHeaderSize is f64 timestamp + u32 length
	recordHeaderSize = 12

	// maxRecordLength rejects length fields that can only come from corruption
	maxRecordLength = 16 << 20
)

// xzMagic starts every xz container; anything else is treated as legacy .lzma
var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// Record is one timestamped entry of a capture file
type Record struct {
	Timestamp float64
	Payload   []byte
}

// CaptureError reports a capture file that could not be read to completion
type CaptureError struct {
	Path string
	Op   string
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// CaptureReader decodes the records of one compressed capture file
type CaptureReader struct {
	path   string
	file   *os.File
	r      *bufio.Reader
	header Record
}

// OpenCapture opens path, sets up decompression and reads the header record
func OpenCapture(path string) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &CaptureError{Path: path, Op: "open", Err: err}
	}

	dec, err := newDecompressor(f)
	if err != nil {
		f.Close()
		return nil, &CaptureError{Path: path, Op: "decompress", Err: err}
	}

	c := &CaptureReader{
		path: path,
		file: f,
		r:    bufio.NewReader(dec),
	}

	header, err := c.readRecord()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &CaptureError{Path: path, Op: "read header", Err: err}
	}
	c.header = header

	return c, nil
}

// newDecompressor picks the xz or legacy lzma decoder from the stream magic
func newDecompressor(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	magic, err := br.Peek(len(xzMagic))
	if err == nil && bytes.Equal(magic, xzMagic) {
		return xz.NewReader(br)
	}
	return lzma.NewReader(br)
}

// Path returns the file this reader decodes
func (c *CaptureReader) Path() string {
	return c.path
}

// Header returns the header record. Its timestamp is the file's start time.
func (c *CaptureReader) Header() Record {
	return c.header
}

// Next returns the next record. It returns io.EOF at a clean end of file and
// a *CaptureError when the file is truncated or corrupt.
func (c *CaptureReader) Next() (Record, error) {
	rec, err := c.readRecord()
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, io.EOF) {
		return Record{}, io.EOF
	}
	return Record{}, &CaptureError{Path: c.path, Op: "read record", Err: err}
}

// readRecord returns io.EOF only when no byte of the record was present
func (c *CaptureReader) readRecord() (Record, error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return Record{}, err
	}

	ts := math.Float64frombits(binary.BigEndian.Uint64(hdr[0:8]))
	length := binary.BigEndian.Uint32(hdr[8:12])
	if length > maxRecordLength {
		return Record{}, fmt.Errorf("record length %d exceeds %d", length, maxRecordLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, err
	}

	return Record{Timestamp: ts, Payload: payload}, nil
}

// Close releases the underlying file
func (c *CaptureReader) Close() error {
	return c.file.Close()
}

// WriteCapture writes an xz capture file with the given header and records.
// It is used to produce fixtures and by tooling that re-packs captures.
func WriteCapture(w io.Writer, header Record, records []Record) error {
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}

	bw := bufio.NewWriter(xw)
	if err := writeRecord(bw, header); err != nil {
		return err
	}
	for _, rec := range records {
		if err := writeRecord(bw, rec); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush capture: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("failed to close xz stream: %w", err)
	}
	return nil
}

func writeRecord(w io.Writer, rec Record) error {
	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[0:8], math.Float64bits(rec.Timestamp))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(rec.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if _, err := w.Write(rec.Payload); err != nil {
		return fmt.Errorf("failed to write record payload: %w", err)
	}
	return nil
}
