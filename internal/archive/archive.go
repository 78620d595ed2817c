// Package archive reads and writes the persisted artifacts of the warm-start
// cache.
//
// An archive is a fixed header followed by a gob payload that may be zstd
// compressed. The header records the artifact kind, the schema and tool
// versions that wrote it, the payload length, and an xxhash64 checksum of the
// stored payload bytes. Files are written to a temporary sibling and renamed
// into place, so readers see either the old artifact or the new one.
//
// Every read failure is reported as ErrCorrupt or ErrVersionMismatch; callers
// treat both as a cache miss.
package archive

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrCorrupt reports a truncated, damaged or unreadable archive.
	ErrCorrupt = errors.New("archive: corrupt")

	// ErrVersionMismatch reports an archive written by a different format,
	// schema or tool version.
	ErrVersionMismatch = errors.New("archive: version mismatch")
)

// Kind identifies what an archive holds.
type Kind uint8

const (
	KindMetadata Kind = iota + 1
	KindShard
	KindProject
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindMetadata:
		return "metadata"
	case KindShard:
		return "shard"
	case KindProject:
		return "project"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

const (
	magic         = "NOVA"
	formatVersion = 1

	flagZstd uint8 = 1 << 0

	// maxPayload bounds decoded payloads so a damaged length field cannot
	// trigger a huge allocation.
	maxPayload = 1 << 30
)

// Format carries the versions stamped into and required from every archive.
type Format struct {
	Schema uint32
	Tool   string

	// Compress enables zstd compression of written payloads. Reads accept
	// either form.
	Compress bool
}

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	})
)

// Encode serializes v into an archive of the given kind.
func (f Format) Encode(kind Kind, v any) ([]byte, error) {
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(v); err != nil {
		return nil, fmt.Errorf("archive: encode %s: %w", kind, err)
	}
	body := payload.Bytes()

	var flags uint8
	if f.Compress {
		enc, err := encoder()
		if err != nil {
			return nil, fmt.Errorf("archive: zstd encoder: %w", err)
		}
		body = enc.EncodeAll(body, nil)
		flags |= flagZstd
	}

	if len(f.Tool) > 0xFFFF {
		return nil, fmt.Errorf("archive: tool version too long (%d bytes)", len(f.Tool))
	}

	out := make([]byte, 0, headerLen(f.Tool)+len(body))
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, formatVersion)
	out = append(out, byte(kind), flags)
	out = binary.LittleEndian.AppendUint32(out, f.Schema)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(f.Tool)))
	out = append(out, f.Tool...)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(body)))
	out = binary.LittleEndian.AppendUint64(out, xxhash.Sum64(body))
	out = append(out, body...)
	return out, nil
}

func headerLen(tool string) int {
	return len(magic) + 2 + 1 + 1 + 4 + 2 + len(tool) + 8 + 8
}

// Decode validates data as an archive of the given kind and decodes its
// payload into v.
func (f Format) Decode(data []byte, kind Kind, v any) error {
	r := reader{buf: data}
	if string(r.next(len(magic))) != magic {
		return fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	version := r.u16()
	gotKind := Kind(r.u8())
	flags := r.u8()
	schema := r.u32()
	tool := string(r.next(int(r.u16())))
	length := r.u64()
	sum := r.u64()
	if r.short {
		return fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	switch {
	case version != formatVersion:
		return fmt.Errorf("%w: format %d, want %d", ErrVersionMismatch, version, formatVersion)
	case schema != f.Schema:
		return fmt.Errorf("%w: schema %d, want %d", ErrVersionMismatch, schema, f.Schema)
	case tool != f.Tool:
		return fmt.Errorf("%w: tool %q, want %q", ErrVersionMismatch, tool, f.Tool)
	case gotKind != kind:
		return fmt.Errorf("%w: holds %s, want %s", ErrCorrupt, gotKind, kind)
	case flags&^flagZstd != 0:
		return fmt.Errorf("%w: unknown flags %#x", ErrCorrupt, flags)
	case length > maxPayload || length != uint64(len(r.buf)):
		return fmt.Errorf("%w: payload length %d, have %d bytes", ErrCorrupt, length, len(r.buf))
	}

	body := r.buf
	if xxhash.Sum64(body) != sum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if flags&flagZstd != 0 {
		dec, err := decoder()
		if err != nil {
			return fmt.Errorf("archive: zstd decoder: %w", err)
		}
		if body, err = dec.DecodeAll(body, nil); err != nil {
			return fmt.Errorf("%w: decompress: %v", ErrCorrupt, err)
		}
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCorrupt, kind, err)
	}
	return nil
}

// Write encodes v and atomically replaces path with it.
func (f Format) Write(path string, kind Kind, v any) error {
	data, err := f.Encode(kind, v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// Read decodes the archive at path into v. A missing file is reported as
// an error satisfying errors.Is(err, fs.ErrNotExist).
func (f Format) Read(path string, kind Kind, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", filepath.Base(path), err)
	}
	return f.Decode(data, kind, v)
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it over path.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("archive: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("archive: sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("archive: rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// reader consumes a byte slice and remembers whether it ran out.
type reader struct {
	buf   []byte
	short bool
}

func (r *reader) next(n int) []byte {
	if r.short || n > len(r.buf) {
		r.short = true
		r.buf = nil
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.next(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.next(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
