package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/logship/logship/pkg/types"
)

func batch(source string, msgs ...string) types.Batch {
	b := types.Batch{Source: source, Version: "1.0.0"}
	for _, m := range msgs {
		b.Logs = append(b.Logs, types.LogEvent{Level: types.LevelInfo, Message: m})
	}
	return b
}

// fixedClock returns a func() time.Time that always returns *t.
func fixedClock(t *time.Time) func() time.Time { return func() time.Time { return *t } }

func messages(events []types.LogEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Message
	}
	return out
}

func TestAppendAndList(t *testing.T) {
	st := New(5 * time.Minute)
	e := st.Append("b-1", "client-1", batch("app", "a", "b"))

	if e.ID != "b-1" || e.Subject != "client-1" || len(e.Logs) != 2 {
		t.Errorf("entry: %+v", e)
	}
	got := st.List("app")
	if len(got) != 1 || got[0].ID != "b-1" {
		t.Fatalf("List: %+v", got)
	}
}

func TestList_PerSourceOrder(t *testing.T) {
	st := New(0)
	st.Append("1", "", batch("app", "a1"))
	st.Append("2", "", batch("other", "o1"))
	st.Append("3", "", batch("app", "a2", "a3"))

	if got := fmt.Sprint(messages(st.Events("app"))); got != "[a1 a2 a3]" {
		t.Errorf("app events: got %s", got)
	}
	if got := fmt.Sprint(messages(st.Events(""))); got != "[a1 o1 a2 a3]" {
		t.Errorf("all events: got %s", got)
	}
	if got := fmt.Sprint(st.Sources()); got != "[app other]" {
		t.Errorf("sources: got %s", got)
	}
}

func TestList_UnknownSource(t *testing.T) {
	st := New(time.Minute)
	if got := st.List("nope"); len(got) != 0 {
		t.Errorf("List: got %d entries", len(got))
	}
}

func TestList_ExcludesExpired(t *testing.T) {
	now := time.Now()
	st := New(5 * time.Minute)
	st.now = fixedClock(&now)

	st.Append("old", "", batch("app", "old"))
	now = now.Add(4 * time.Minute)
	st.Append("new", "", batch("app", "new"))
	now = now.Add(2 * time.Minute)

	got := st.List("app")
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("List: got %+v", got)
	}
	if b, _ := st.Count(); b != 2 {
		t.Errorf("Count includes unevicted entries: got %d, want 2", b)
	}
}

func TestEvict(t *testing.T) {
	base := time.Now()
	now := base
	st := New(5 * time.Minute)
	st.now = fixedClock(&now)

	st.Append("1", "", batch("app", "a"))
	st.Append("2", "", batch("gone", "g"))
	now = base.Add(3 * time.Minute)
	st.Append("3", "", batch("app", "b", "c"))

	if n := st.Evict(base.Add(6 * time.Minute)); n != 2 {
		t.Errorf("Evict: removed %d, want 2", n)
	}
	batches, events := st.Count()
	if batches != 1 || events != 2 {
		t.Errorf("Count: got %d batches %d events", batches, events)
	}
	if got := fmt.Sprint(st.Sources()); got != "[app]" {
		t.Errorf("sources after evict: %s", got)
	}
}

func TestEvict_ZeroRetentionKeepsEverything(t *testing.T) {
	st := New(0)
	st.Append("1", "", batch("app", "a"))
	if n := st.Evict(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Errorf("Evict: removed %d", n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	st := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		st.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAppend(t *testing.T) {
	st := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				st.Append(fmt.Sprintf("%d-%d", i, j), "", batch("app", "m"))
				st.List("app")
			}
		}(i)
	}
	wg.Wait()
	if b, _ := st.Count(); b != 1000 {
		t.Errorf("Count: got %d, want 1000", b)
	}
}
