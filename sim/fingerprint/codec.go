package fingerprint

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/klauspost/compress/zstd"
)

const (
	headerByte    byte  = 0x46 // 'F'
	formatVersion uint8 = 1

	// FileExtension is appended to fingerprint file names.
	FileExtension = ".fp.zst"
)

// ErrBadHeader is returned when reading data that is not a fingerprint.
var ErrBadHeader = errors.New("not a fingerprint: bad header")

// Write encodes fp to w: a header byte, a version byte, then a zstd frame
// holding the bin size, the time bins, the kind counts sorted by name and
// the hash.
func Write(w io.Writer, fp *Fingerprint) error {
	if _, err := w.Write([]byte{headerByte, formatVersion}); err != nil {
		return fmt.Errorf("writing fingerprint header: %w", err)
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := enc.Write(encodePayload(fp)); err != nil {
		enc.Close()
		return fmt.Errorf("writing fingerprint payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing zstd writer: %w", err)
	}
	return nil
}

// Read decodes a fingerprint written by Write.
func Read(r io.Reader) (*Fingerprint, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("reading fingerprint header: %w", err)
	}
	if hdr[0] != headerByte {
		return nil, ErrBadHeader
	}
	if hdr[1] != formatVersion {
		return nil, fmt.Errorf("unsupported fingerprint version %d", hdr[1])
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()
	payload, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing fingerprint: %w", err)
	}
	fp, err := decodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding fingerprint: %w", err)
	}
	fp.Version = hdr[1]
	return fp, nil
}

// WriteFile writes fp to path, creating or truncating it.
func WriteFile(path string, fp *Fingerprint) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating fingerprint file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing fingerprint file: %w", cerr)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := Write(bw, fp); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFile reads a fingerprint from path.
func ReadFile(path string) (*Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fingerprint file: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

func encodePayload(fp *Fingerprint) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(fp.BinSize))
	buf = binary.AppendUvarint(buf, uint64(len(fp.TimeBins)))
	for _, c := range fp.TimeBins {
		buf = binary.AppendUvarint(buf, c)
	}
	names := make([]string, 0, len(fp.Kinds))
	for k := range fp.Kinds {
		names = append(names, k)
	}
	slices.Sort(names)
	buf = binary.AppendUvarint(buf, uint64(len(names)))
	for _, k := range names {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
		buf = binary.AppendUvarint(buf, fp.Kinds[k])
	}
	return binary.LittleEndian.AppendUint64(buf, fp.Hash)
}

func decodePayload(data []byte) (*Fingerprint, error) {
	r := bytes.NewReader(data)
	fp := &Fingerprint{Kinds: make(map[string]uint64)}

	var bits uint64
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return nil, fmt.Errorf("bin size: %w", err)
	}
	fp.BinSize = math.Float64frombits(bits)

	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("bin count: %w", err)
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("bin count %d exceeds payload", n)
	}
	fp.TimeBins = make([]uint64, n)
	for i := range fp.TimeBins {
		if fp.TimeBins[i], err = binary.ReadUvarint(r); err != nil {
			return nil, fmt.Errorf("bin %d: %w", i, err)
		}
	}

	nk, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("kind count: %w", err)
	}
	for i := uint64(0); i < nk; i++ {
		l, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("kind %d: %w", i, err)
		}
		if l > uint64(r.Len()) {
			return nil, fmt.Errorf("kind %d: name length %d exceeds payload", i, l)
		}
		name := make([]byte, l)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("kind %d: %w", i, err)
		}
		c, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("kind %q: %w", name, err)
		}
		fp.Kinds[string(name)] = c
	}

	if err := binary.Read(r, binary.LittleEndian, &fp.Hash); err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", r.Len())
	}
	return fp, nil
}
