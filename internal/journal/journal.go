// Package journal is a durable spool for samples awaiting insertion into
// the store. Each entry is a msgpack body behind an 8-byte header holding
// its length and CRC-32C. Commit progress lives in a sidecar file.
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tinytelemetry/sigex/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	headerSize = 8
	// maxFrame bounds one entry; larger length prefixes are treated as
	// corruption.
	maxFrame = 16 << 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type entry struct {
	Seq    uint64       `msgpack:"seq"`
	Sample model.Sample `msgpack:"sample"`
}

// Journal is an append-only spool of samples.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
}

// Open creates or opens a journal at path. Committed entries are compacted
// away and a partially written trailing frame is dropped.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}
	maxSeq, err := compact(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    max(maxSeq, committed) + 1,
		committed:  committed,
	}, nil
}

func encodeFrame(e *entry) ([]byte, error) {
	body, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("journal: encode entry: %w", err)
	}
	frame := make([]byte, headerSize, headerSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.BigEndian.PutUint32(frame[4:8], crc32.Checksum(body, castagnoli))
	return append(frame, body...), nil
}

// Append persists one sample and returns its sequence number.
func (j *Journal) Append(s *model.Sample) (uint64, error) {
	if s == nil {
		return 0, errors.New("journal: nil sample")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	e := entry{Seq: j.nextSeq, Sample: *s}
	frame, err := encodeFrame(&e)
	if err != nil {
		return 0, err
	}
	if _, err := j.file.Write(frame); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync entry: %w", err)
	}
	j.nextSeq++
	return e.Seq, nil
}

// Commit marks all entries up to seq as stored.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if seq <= j.committed {
		return nil
	}
	if err := writeCommitted(j.commitPath, seq); err != nil {
		return err
	}
	j.committed = seq
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each uncommitted entry in sequence order.
func (j *Journal) Replay(fn func(seq uint64, s *model.Sample) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}
	j.mu.Lock()
	path, committed := j.path, j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	return scan(f, func(e *entry, _ []byte) error {
		if e.Seq <= committed {
			return nil
		}
		return fn(e.Seq, &e.Sample)
	})
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scan decodes frames until EOF. The first truncated, corrupt or
// undecodable frame ends the scan without error; everything after it is
// dropped by the next compaction.
func scan(r io.Reader, fn func(e *entry, frame []byte) error) error {
	br := bufio.NewReader(r)
	for {
		frame, err := readFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, errCorrupt) {
				return nil
			}
			return fmt.Errorf("journal: read: %w", err)
		}
		var e entry
		if err := msgpack.Unmarshal(frame[headerSize:], &e); err != nil {
			return nil
		}
		if err := fn(&e, frame); err != nil {
			return err
		}
	}
}

var errCorrupt = errors.New("journal: corrupt frame")

func readFrame(r io.Reader) ([]byte, error) {
	var head [headerSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(head[0:4])
	if n == 0 || n > maxFrame {
		return nil, errCorrupt
	}
	frame := make([]byte, headerSize+int(n))
	copy(frame, head[:])
	if _, err := io.ReadFull(r, frame[headerSize:]); err != nil {
		return nil, err
	}
	if crc32.Checksum(frame[headerSize:], castagnoli) != binary.BigEndian.Uint32(head[4:8]) {
		return nil, errCorrupt
	}
	return frame, nil
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

// replaceFile streams write into a temp file beside path, syncs it and
// renames it into place.
func replaceFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()
	if err = f.Chmod(defaultFileMode); err != nil {
		return err
	}
	if err = write(f); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

func writeCommitted(path string, seq uint64) error {
	err := replaceFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, strconv.FormatUint(seq, 10)+"\n")
		return err
	})
	if err != nil {
		return fmt.Errorf("journal: write commit file: %w", err)
	}
	return nil
}

// compact rewrites path without committed entries and returns the
// highest sequence number seen.
func compact(path string, committed uint64) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open source for compact: %w", err)
	}
	defer src.Close()

	var maxSeq uint64
	err = replaceFile(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		err := scan(src, func(e *entry, frame []byte) error {
			maxSeq = max(maxSeq, e.Seq)
			if e.Seq <= committed {
				return nil
			}
			_, err := bw.Write(frame)
			return err
		})
		if err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return 0, fmt.Errorf("journal: compact: %w", err)
	}
	return maxSeq, nil
}
