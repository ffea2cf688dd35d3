package journal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinytelemetry/sigex/internal/model"
)

func sample(pos int64, msg string) *model.Sample {
	return &model.Sample{RecordID: "r1", SignalID: 1, Position: pos, Values: []any{msg}}
}

func replayMessages(t *testing.T, j *Journal) []string {
	t.Helper()
	var out []string
	err := j.Replay(func(_ uint64, s *model.Sample) error {
		out = append(out, s.Values[0].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	return out
}

func TestAppendReplayCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	seq1, err := j.Append(sample(10, "first"))
	if err != nil {
		t.Fatalf("Append first: %v", err)
	}
	seq2, err := j.Append(sample(20, "second"))
	if err != nil {
		t.Fatalf("Append second: %v", err)
	}
	if seq2 <= seq1 {
		t.Fatalf("sequence did not advance: seq1=%d seq2=%d", seq1, seq2)
	}

	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if j.Committed() != seq1 {
		t.Fatalf("Committed=%d, want %d", j.Committed(), seq1)
	}

	got := replayMessages(t, j)
	if len(got) != 1 || got[0] != "second" {
		t.Fatalf("Replay=%v, want [second]", got)
	}
}

func TestReopenCompactsAndContinuesSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	seq1, _ := j.Append(sample(1, "a"))
	seq2, _ := j.Append(sample(2, "b"))
	if err := j.Commit(seq1); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = j2.Close() }()

	seq3, err := j2.Append(sample(3, "c"))
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if seq3 <= seq2 {
		t.Fatalf("seq3=%d must follow seq2=%d", seq3, seq2)
	}
	got := replayMessages(t, j2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("Replay=%v, want [b c]", got)
	}
}

func TestOpenIgnoresPartialTrailingFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := j.Append(sample(1, "ok")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a torn write: a length prefix promising more bytes than follow.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 40, 0x82, 0xa3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close torn writer: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("Open second: %v", err)
	}
	defer func() { _ = j2.Close() }()

	got := replayMessages(t, j2)
	if len(got) != 1 || got[0] != "ok" {
		t.Fatalf("Replay after torn write=%v, want [ok]", got)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "samples.journal"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := j.Append(sample(1, "late")); err == nil {
		t.Fatal("expected append on closed journal to fail")
	}
	if _, err := Open(" "); err == nil {
		t.Fatal("expected empty path to fail")
	}
}

func TestReplayStopsAtChecksumMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.journal")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, msg := range []string{"a", "b", "c"} {
		if _, err := j.Append(sample(int64(i), msg)); err != nil {
			t.Fatalf("Append %s: %v", msg, err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	first := readLen(data)
	second := first + readLen(data[first:])
	data[second-1] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	j2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = j2.Close() }()

	got := replayMessages(t, j2)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("Replay after corruption=%v, want [a]", got)
	}
}

// readLen returns the full size of the frame at the start of b.
func readLen(b []byte) int {
	return headerSize + int(binary.BigEndian.Uint32(b[:4]))
}
