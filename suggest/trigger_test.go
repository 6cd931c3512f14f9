package suggest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	topics []string
	err    error
	block  chan struct{}
}

func (f *fakeFetcher) fetch(ctx context.Context, transcript string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, transcript)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topics, f.err
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// inlineTrigger runs fetches synchronously so state is settled on return.
func inlineTrigger(f *fakeFetcher, snapshot *string) *Trigger {
	tr := New(Config{
		Fetch:    f.fetch,
		Snapshot: func() string { return *snapshot },
	})
	tr.spawn = func(fn func()) { fn() }
	return tr
}

func TestAutoFiresAfterSilence(t *testing.T) {
	f := &fakeFetcher{topics: []string{"travel", "food"}}
	snap := ""
	tr := inlineTrigger(f, &snap)
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)

	if tr.Tick(t0.Add(5 * time.Second)) {
		t.Fatal("fired before silence threshold")
	}
	if !tr.Tick(t0.Add(6 * time.Second)) {
		t.Fatal("did not fire at silence threshold")
	}
	st := tr.State()
	assert.Equal(t, []string{"travel", "food"}, st.Topics)
	assert.Equal(t, SourceAuto, st.Source)
	assert.True(t, st.CooldownActive)
	assert.False(t, st.Fetching)
	assert.Equal(t, []string{""}, f.calls, "auto fires with an empty transcript")

	// cooldown holds until speech resumes
	for i := 7; i < 30; i++ {
		if tr.Tick(t0.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("fired during cooldown at %ds", i)
		}
	}
	tr.Activity(t0.Add(30 * time.Second))
	assert.False(t, tr.State().CooldownActive)
	assert.False(t, tr.Tick(t0.Add(35*time.Second)))
	assert.True(t, tr.Tick(t0.Add(36*time.Second)))
	assert.Equal(t, 2, f.count())
}

func TestSingleRequestInFlight(t *testing.T) {
	f := &fakeFetcher{topics: []string{"a"}, block: make(chan struct{})}
	tr := New(Config{Fetch: f.fetch})
	done := make(chan struct{})
	tr.spawn = func(fn func()) {
		go func() {
			fn()
			close(done)
		}()
	}
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)

	require.True(t, tr.Tick(t0.Add(7*time.Second)))
	assert.False(t, tr.Tick(t0.Add(8*time.Second)), "second tick during fetch must not fire")
	assert.True(t, tr.State().Fetching)

	close(f.block)
	<-done
	assert.Equal(t, 1, f.count())
	assert.False(t, tr.State().Fetching)
}

func TestEmptyTopicsNotice(t *testing.T) {
	f := &fakeFetcher{topics: nil}
	snap := "something"
	tr := inlineTrigger(f, &snap)
	tr.Reset(time.Unix(0, 0))
	tr.st.Topics = []string{"old"}

	require.NoError(t, tr.RequestManual())
	st := tr.State()
	assert.Empty(t, st.Topics)
	assert.Equal(t, NoFreshIdeas, st.Notice)
	assert.Equal(t, SourceManual, st.Source)
}

func TestFailureReleasesCooldown(t *testing.T) {
	f := &fakeFetcher{err: errors.New("topics: HTTP 502")}
	snap := ""
	tr := inlineTrigger(f, &snap)
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)

	require.True(t, tr.Tick(t0.Add(6*time.Second)))
	st := tr.State()
	assert.Equal(t, "topics: HTTP 502", st.Err)
	assert.Equal(t, SourceAuto, st.ErrSource)
	assert.False(t, st.CooldownActive)

	// retry on the next tick
	assert.True(t, tr.Tick(t0.Add(7*time.Second)))
	assert.Equal(t, 2, f.count())

	// speech clears the stale auto error
	tr.Activity(t0.Add(8 * time.Second))
	assert.Empty(t, tr.State().Err)
}

func TestManualRequest(t *testing.T) {
	f := &fakeFetcher{topics: []string{"x"}}
	snap := "  "
	tr := inlineTrigger(f, &snap)
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)

	snap = ""
	assert.ErrorIs(t, tr.RequestManual(), ErrNothingSaid)
	assert.Equal(t, SaySomethingFirst, tr.State().Err)
	assert.Zero(t, f.count())

	// manual errors survive speech; only auto errors are cleared
	tr.Activity(t0.Add(time.Second))
	assert.Equal(t, SaySomethingFirst, tr.State().Err)

	snap = "i went hiking"
	require.NoError(t, tr.RequestManual())
	assert.Equal(t, []string{"i went hiking"}, f.calls)
	st := tr.State()
	assert.Equal(t, SourceManual, st.Source)
	assert.Empty(t, st.Err)
}

func TestManualRejectedWhileFetching(t *testing.T) {
	f := &fakeFetcher{topics: []string{"a"}}
	snap := "words"
	tr := inlineTrigger(f, &snap)
	tr.spawn = func(func()) {} // never completes
	tr.Reset(time.Unix(0, 0))

	require.NoError(t, tr.RequestManual())
	assert.ErrorIs(t, tr.RequestManual(), ErrBusy)
}

func TestStopDiscardsLateResult(t *testing.T) {
	f := &fakeFetcher{topics: []string{"late"}}
	snap := ""
	tr := inlineTrigger(f, &snap)
	var pending func()
	tr.spawn = func(fn func()) { pending = fn }
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)

	require.True(t, tr.Tick(t0.Add(10*time.Second)))
	tr.Stop()
	pending()
	st := tr.State()
	assert.Empty(t, st.Topics)
	assert.False(t, st.Fetching)
}

func TestPollAfterStopIgnored(t *testing.T) {
	f := &fakeFetcher{topics: []string{"a"}}
	snap := ""
	tr := inlineTrigger(f, &snap)
	t0 := time.Unix(1000, 0)
	tr.Reset(t0)
	tr.Run(time.Hour)
	tr.Stop()

	// a poll that was already waiting on the lock when Stop ran
	assert.False(t, tr.tick(t0.Add(time.Minute), true))
	assert.Equal(t, 0, f.count())
	assert.False(t, tr.State().Fetching)

	tr.Run(time.Hour)
	defer tr.Close()
	assert.True(t, tr.tick(t0.Add(time.Minute), true))
	assert.Equal(t, 1, f.count())
}

func TestOnChangeNotified(t *testing.T) {
	f := &fakeFetcher{topics: []string{"a"}}
	var states []State
	tr := New(Config{
		Fetch:    f.fetch,
		OnChange: func(st State) { states = append(states, st) },
	})
	tr.spawn = func(fn func()) { fn() }
	t0 := time.Unix(0, 0)
	tr.Reset(t0)
	tr.Tick(t0.Add(time.Minute))

	require.Len(t, states, 3) // reset, fetching, done
	assert.True(t, states[1].Fetching)
	assert.Equal(t, []string{"a"}, states[2].Topics)
}

func TestRunPollsOnSchedule(t *testing.T) {
	f := &fakeFetcher{topics: []string{"a"}}
	tr := New(Config{Silence: 10 * time.Millisecond, Fetch: f.fetch})
	tr.Reset(time.Now())
	tr.Run(5 * time.Millisecond)
	defer tr.Close()

	require.Eventually(t, func() bool { return f.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.count(), "cooldown holds without speech")
}
