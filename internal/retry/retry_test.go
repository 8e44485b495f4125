package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/HD-CIPL/portmapper/mapper"
)

// fakeBackoff replays a fixed list of intervals, then reports the schedule
// is exhausted, without any relation to wall-clock time.
type fakeBackoff struct {
	intervals []time.Duration
	i         int
}

func (f *fakeBackoff) NextBackOff() time.Duration {
	if f.i >= len(f.intervals) {
		return -1 // backoff.Stop
	}
	d := f.intervals[f.i]
	f.i++
	return d
}

func (f *fakeBackoff) Reset() { f.i = 0 }

func TestControllerRunReturnsOnMatchingDatagram(t *testing.T) {
	recv := make(chan []byte, 1)
	var sendCount int
	c := &Controller{
		Send: func(ctx context.Context, payload []byte) error {
			sendCount++
			return nil
		},
		Recv:    recv,
		Match:   func(d []byte) bool { return string(d) == "reply" },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Hour}},
	}
	recv <- []byte("reply")
	got, err := c.Run(context.Background(), []byte("req"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(got) != "reply" {
		t.Errorf("Run returned %q, want reply", got)
	}
	if sendCount != 1 {
		t.Errorf("sendCount = %d, want 1 (no retransmit before reply arrives)", sendCount)
	}
}

func TestControllerRunDiscardsNonMatchingDatagrams(t *testing.T) {
	recv := make(chan []byte, 2)
	c := &Controller{
		Send:    func(ctx context.Context, payload []byte) error { return nil },
		Recv:    recv,
		Match:   func(d []byte) bool { return string(d) == "reply" },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Hour}},
	}
	recv <- []byte("not it")
	recv <- []byte("reply")
	got, err := c.Run(context.Background(), []byte("req"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(got) != "reply" {
		t.Errorf("Run returned %q, want reply", got)
	}
}

// TestControllerRunTimesOutAfterScheduleExhausted models spec.md §8's
// end-to-end scenario 6 (no reply arrives; retransmission schedule runs
// out; Timeout) with a fast synthetic schedule rather than the real
// ~128s NAT-PMP timing, which is exercised separately in
// TestNATPMPBackoffScheduleTiming below.
func TestControllerRunTimesOutAfterScheduleExhausted(t *testing.T) {
	var mu sync.Mutex
	sendCount := 0
	c := &Controller{
		Send: func(ctx context.Context, payload []byte) error {
			mu.Lock()
			sendCount++
			mu.Unlock()
			return nil
		},
		Recv:    make(chan []byte),
		Match:   func(d []byte) bool { return false },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}},
	}
	_, err := c.Run(context.Background(), []byte("req"))
	var mapErr *mapper.Error
	if !errors.As(err, &mapErr) || mapErr.Kind != mapper.Timeout {
		t.Fatalf("Run error = %v, want mapper.Timeout", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if sendCount != 3 {
		t.Errorf("sendCount = %d, want 3 (1 initial + 2 retransmits before the 3-interval schedule exhausts)", sendCount)
	}
}

func TestControllerRunSendFailureIsNetworkFailure(t *testing.T) {
	c := &Controller{
		Send:    func(ctx context.Context, payload []byte) error { return errors.New("boom") },
		Recv:    make(chan []byte),
		Match:   func(d []byte) bool { return false },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Hour}},
	}
	_, err := c.Run(context.Background(), []byte("req"))
	var mapErr *mapper.Error
	if !errors.As(err, &mapErr) || mapErr.Kind != mapper.NetworkFailure {
		t.Fatalf("Run error = %v, want mapper.NetworkFailure", err)
	}
}

func TestControllerRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Send:    func(ctx context.Context, payload []byte) error { return nil },
		Recv:    make(chan []byte),
		Match:   func(d []byte) bool { return false },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Hour}},
	}
	cancel()
	_, err := c.Run(ctx, []byte("req"))
	var mapErr *mapper.Error
	if !errors.As(err, &mapErr) || mapErr.Kind != mapper.Cancelled {
		t.Fatalf("Run error = %v, want mapper.Cancelled", err)
	}
}

func TestControllerRunClosedRecvChannelIsNetworkFailure(t *testing.T) {
	recv := make(chan []byte)
	close(recv)
	c := &Controller{
		Send:    func(ctx context.Context, payload []byte) error { return nil },
		Recv:    recv,
		Match:   func(d []byte) bool { return false },
		Backoff: &fakeBackoff{intervals: []time.Duration{time.Hour}},
	}
	_, err := c.Run(context.Background(), []byte("req"))
	var mapErr *mapper.Error
	if !errors.As(err, &mapErr) || mapErr.Kind != mapper.NetworkFailure {
		t.Fatalf("Run error = %v, want mapper.NetworkFailure", err)
	}
}
