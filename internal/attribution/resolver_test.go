package attribution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/todotrail/internal/models"
)

const samplePorcelain = "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c 5 5 1\n" +
	"author Said Ramos\n" +
	"author-mail <said@example.com>\n" +
	"author-time 1700000000\n" +
	"author-tz +0100\n" +
	"committer Said Ramos\n" +
	"committer-mail <said@example.com>\n" +
	"committer-time 1700000000\n" +
	"committer-tz +0100\n" +
	"summary add login\n" +
	"filename main.go\n" +
	"\t// TODO(said): fix login\n"

type fakeExecutor struct {
	mu    sync.Mutex
	calls atomic.Int32
	args  [][]string
	dirs  []string
	out   []byte
	err   error
	delay time.Duration
	// release, when set, blocks Run until it is closed or ctx ends.
	release chan struct{}
}

func (f *fakeExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.args = append(f.args, append([]string{name}, args...))
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.out, f.err
}

func newTestResolver(t *testing.T, ex CommandExecutor) *Resolver {
	t.Helper()
	r, err := New(WithExecutor(ex), WithCacheSize(8))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestParsePorcelain(t *testing.T) {
	att, err := ParsePorcelain([]byte(samplePorcelain))
	if err != nil {
		t.Fatalf("ParsePorcelain: %v", err)
	}
	if att.Author != "Said Ramos" {
		t.Errorf("author = %q", att.Author)
	}
	if att.Revision != "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c" {
		t.Errorf("revision = %q", att.Revision)
	}
	if !att.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("timestamp = %v", att.Timestamp)
	}
}

func TestParsePorcelain_Defensive(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"garbage header": "fatal: not a git repository\n",
		"missing author": "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c 1 1 1\nauthor-time 1700000000\n\tx\n",
		"missing time":   "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c 1 1 1\nauthor Someone\n\tx\n",
		"bad time":       "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c 1 1 1\nauthor Someone\nauthor-time soon\n\tx\n",
	}
	for name, out := range cases {
		if att, err := ParsePorcelain([]byte(out)); err == nil {
			t.Errorf("%s: expected error, got %+v", name, att)
		}
	}
}

func TestParsePorcelain_NotCommitted(t *testing.T) {
	out := "0000000000000000000000000000000000000000 3 3 1\n" +
		"author Not Committed Yet\nauthor-time 1700000000\n\tline\n"
	if _, err := ParsePorcelain([]byte(out)); !errors.Is(err, ErrNotCommitted) {
		t.Errorf("err = %v, want ErrNotCommitted", err)
	}
}

func TestResolve_InvokesBlameForSingleLine(t *testing.T) {
	ex := &fakeExecutor{out: []byte(samplePorcelain)}
	r := newTestResolver(t, ex)

	att := r.Resolve(context.Background(), "/repo/src/main.go", 4)
	if att == nil || att.Author != "Said Ramos" {
		t.Fatalf("att = %+v", att)
	}

	want := []string{"git", "blame", "--porcelain", "-L", "5,5", "--", "main.go"}
	got := ex.args[0]
	if len(got) != len(want) {
		t.Fatalf("args = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("args = %v, want %v", got, want)
		}
	}
	if ex.dirs[0] != "/repo/src" {
		t.Errorf("dir = %q", ex.dirs[0])
	}
}

func TestResolve_CachesSuccessAndFailure(t *testing.T) {
	ok := &fakeExecutor{out: []byte(samplePorcelain)}
	r := newTestResolver(t, ok)
	ctx := context.Background()

	r.Resolve(ctx, "/repo/a.go", 1)
	r.Resolve(ctx, "/repo/a.go", 1)
	if n := ok.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}

	failing := &fakeExecutor{err: errors.New("exit status 128: not a git repository")}
	r = newTestResolver(t, failing)
	if att := r.Resolve(ctx, "/tmp/x.go", 0); att != nil {
		t.Errorf("att = %+v, want nil", att)
	}
	if att := r.Resolve(ctx, "/tmp/x.go", 0); att != nil {
		t.Errorf("att = %+v, want nil", att)
	}
	if n := failing.calls.Load(); n != 1 {
		t.Errorf("failed lookup repeated: calls = %d", n)
	}
	att, loaded := r.Peek("/tmp/x.go", 0)
	if !loaded || att != nil {
		t.Errorf("Peek = %+v, %v; want nil, true", att, loaded)
	}
}

func TestResolve_CancelledCallerNotCached(t *testing.T) {
	ex := &fakeExecutor{out: []byte(samplePorcelain)}
	r := newTestResolver(t, ex)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if att := r.Resolve(ctx, "/repo/a.go", 2); att != nil {
		t.Errorf("att = %+v, want nil", att)
	}
	if _, loaded := r.Peek("/repo/a.go", 2); loaded {
		t.Error("cancelled request must not cache an outcome")
	}

	att := r.Resolve(context.Background(), "/repo/a.go", 2)
	if att == nil || att.Author != "Said Ramos" {
		t.Fatalf("att = %+v", att)
	}
	if n := ex.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestResolve_AbandonedLookupStillCached(t *testing.T) {
	ex := &fakeExecutor{out: []byte(samplePorcelain), release: make(chan struct{})}
	r := newTestResolver(t, ex)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *models.Attribution)
	go func() { done <- r.Resolve(ctx, "/repo/a.go", 7) }()

	for ex.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case att := <-done:
		if att != nil {
			t.Errorf("att = %+v, want nil for the abandoned caller", att)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve did not return after cancel")
	}

	close(ex.release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		att, loaded := r.Peek("/repo/a.go", 7)
		if loaded {
			if att == nil || att.Author != "Said Ramos" {
				t.Errorf("cached att = %+v", att)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("shared lookup outcome was never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := ex.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestResolve_InvalidateForcesLookup(t *testing.T) {
	ex := &fakeExecutor{out: []byte(samplePorcelain)}
	r := newTestResolver(t, ex)
	ctx := context.Background()

	r.Resolve(ctx, "/repo/a.go", 1)
	r.Invalidate("/repo/a.go")
	if _, loaded := r.Peek("/repo/a.go", 1); loaded {
		t.Error("Peek after Invalidate should report not loaded")
	}
	r.Resolve(ctx, "/repo/a.go", 1)
	if n := ex.calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}

	r.Clear()
	if _, loaded := r.Peek("/repo/a.go", 1); loaded {
		t.Error("Peek after Clear should report not loaded")
	}
}

func TestResolve_ConcurrentSameLineDeduplicated(t *testing.T) {
	ex := &fakeExecutor{out: []byte(samplePorcelain), delay: 50 * time.Millisecond}
	r := newTestResolver(t, ex)

	var wg sync.WaitGroup
	results := make([]*models.Attribution, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Resolve(context.Background(), "/repo/a.go", 3)
		}(i)
	}
	wg.Wait()

	if n := ex.calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
	for i, att := range results {
		if att == nil {
			t.Errorf("result %d is nil", i)
		}
	}
}

func TestPeek_Unresolved(t *testing.T) {
	r := newTestResolver(t, &fakeExecutor{})
	if _, loaded := r.Peek("/nowhere.go", 0); loaded {
		t.Error("expected not loaded")
	}
}
