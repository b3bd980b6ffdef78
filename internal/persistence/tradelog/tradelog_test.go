package tradelog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"tradepost.gg/internal/trade"
)

func TestWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)

	now := time.Now()
	w.Record(trade.AuditEntry{Time: now, Kind: "REQUESTED", AgentA: "A1", AgentB: "A2"})
	w.Record(trade.AuditEntry{Time: now, Kind: "STARTED", SessionID: "s1", AgentA: "A1", AgentB: "A2"})
	w.Record(trade.AuditEntry{Time: now, Kind: "COMPLETED", SessionID: "s1", AgentA: "A1", AgentB: "A2"})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(dir, "trades"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no log files: %v", err)
	}
	name := files[0].Name()
	if !strings.HasPrefix(name, "trades-") || !strings.HasSuffix(name, ".jsonl.zst") {
		t.Fatalf("unexpected file name: %s", name)
	}

	f, err := os.Open(filepath.Join(dir, "trades", name))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var kinds []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e trade.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, e.Kind)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(kinds) != 3 || kinds[0] != "REQUESTED" || kinds[2] != "COMPLETED" {
		t.Fatalf("unexpected entries: %v", kinds)
	}
}

func TestRecordAfterCloseReopens(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	w.Record(trade.AuditEntry{Kind: "REQUESTED", AgentA: "A1"})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// A record after close rotates a fresh writer onto the same hour file.
	w.Record(trade.AuditEntry{Kind: "STARTED", AgentA: "A1"})
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	files, err := os.ReadDir(filepath.Join(dir, "trades"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no log files: %v", err)
	}
}
