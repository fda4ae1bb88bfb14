package transfer

import "github.com/google/uuid"

// Progress is reported after every chunk of a transfer.
type Progress struct {
	ID       uuid.UUID
	Filename string
	Bytes    int64
	Total    int64
	Percent  int
}

// ProgressFunc receives progress updates. It runs on the transfer goroutine.
type ProgressFunc func(Progress)

// tracker keeps Percent non-decreasing and lands on exactly 100 when
// Bytes reaches Total.
type tracker struct {
	p  Progress
	fn ProgressFunc
}

func newTracker(id uuid.UUID, name string, total int64, fn ProgressFunc) *tracker {
	return &tracker{p: Progress{ID: id, Filename: name, Total: total}, fn: fn}
}

func (t *tracker) add(n int) {
	t.p.Bytes += int64(n)
	if pct := percent(t.p.Bytes, t.p.Total); pct > t.p.Percent {
		t.p.Percent = pct
	}
	if t.fn != nil {
		t.fn(t.p)
	}
}

// done emits the final update for empty files, which never see a chunk.
func (t *tracker) done() {
	if t.p.Total == 0 {
		t.p.Percent = 100
		if t.fn != nil {
			t.fn(t.p)
		}
	}
}

func percent(done, total int64) int {
	if total <= 0 {
		return 100
	}
	if done >= total {
		return 100
	}
	return int(done * 100 / total)
}
