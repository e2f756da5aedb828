// Package codec encodes ledger events as self-delimiting msgpack records.
//
// A ledger file is nothing more than records written back to back, so a
// decoder finds the end of one record by parsing it. Integers are written at
// full width and floats as float64 so timestamps and counters round-trip
// without loss; on the way back numbers decode as int64, uint64 or float64.
package codec

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/V4T54L/aep-ledger/internal/domain"
)

// Encode returns the msgpack encoding of a single event.
func Encode(event domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(event); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encoder writes a stream of records to w.
type Encoder struct {
	enc *msgpack.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: msgpack.NewEncoder(w)}
}

// Encode appends one record to the stream. A nil event is rejected: msgpack
// would write it as nil, which is not a record.
func (e *Encoder) Encode(event domain.Event) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", domain.ErrEncode)
	}
	if err := e.enc.Encode(map[string]any(event)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncode, err)
	}
	return nil
}

// Decoder reads back-to-back records from a stream.
type Decoder struct {
	r       *countingReader
	dec     *msgpack.Decoder
	records int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	cr := &countingReader{r: bufio.NewReader(r)}
	dec := msgpack.NewDecoder(cr)
	dec.UseLooseInterfaceDecoding(true)
	return &Decoder{r: cr, dec: dec}
}

// Next decodes the next record. It returns io.EOF only when the stream ends
// exactly on a record boundary; a stream that ends inside a record, or holds
// bytes that are not a record, yields a *domain.DecodeError.
func (d *Decoder) Next() (domain.Event, error) {
	start := d.r.n
	if _, err := d.r.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &domain.DecodeError{Offset: start, Records: d.records, Err: err}
	}
	m, err := d.dec.DecodeMap()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &domain.DecodeError{Offset: start, Records: d.records, Err: err}
	}
	if m == nil {
		// A msgpack nil where a record belongs is not a record.
		return nil, &domain.DecodeError{Offset: start, Records: d.records, Err: errors.New("nil record")}
	}
	d.records++
	return domain.Event(m), nil
}

// Records returns how many records have been decoded so far.
func (d *Decoder) Records() int { return d.records }

// ContentID derives an identifier from the content of v: the hex SHA-256 of
// its msgpack encoding with map keys sorted, so equal content always hashes
// the same regardless of map iteration order.
func ContentID(v any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrEncode, err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// countingReader tracks the byte offset consumed by the msgpack decoder.
// It keeps io.ByteScanner so the decoder reads through it without adding a
// second buffer that would hide the offset.
type countingReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

func (c *countingReader) UnreadByte() error {
	if err := c.r.UnreadByte(); err != nil {
		return err
	}
	c.n--
	return nil
}
