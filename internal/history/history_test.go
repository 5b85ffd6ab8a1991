package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_RecordAndByFileID(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	id, err := s.Record(Run{
		FileID:      "abcd1234",
		FileName:    "photo.jpg",
		Kind:        KindDecode,
		Outcome:     OutcomeDone,
		FileSize:    204800,
		ChunksCount: 200,
		StartedAt:   now,
		FinishedAt:  now.Add(30 * time.Second),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero row id")
	}

	runs, err := s.ByFileID("abcd1234")
	if err != nil {
		t.Fatalf("ByFileID: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Outcome != OutcomeDone || runs[0].Kind != KindDecode {
		t.Fatalf("unexpected run contents: %+v", runs[0])
	}
}

func TestStore_RecentOrdersByStartedAtDesc(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	for i, outcome := range []Outcome{OutcomeDone, OutcomePartial, OutcomePoisoned} {
		if _, err := s.Record(Run{
			FileID:    "file",
			FileName:  "f.bin",
			Kind:      KindEncode,
			Outcome:   outcome,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(recent))
	}
	if recent[0].Outcome != OutcomePoisoned {
		t.Fatalf("expected most recent row first, got %+v", recent[0])
	}
}
