package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcher_FiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.csv")
	if err := os.WriteFile(path, []byte("case,activity\n"), 0644); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.csv")

	w, err := NewWatcher(zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	w.SetDebounce(20 * time.Millisecond)

	changed := make(chan string, 4)
	w.OnChange = func(ctx context.Context, p string) error {
		changed <- p
		return nil
	}
	if err := w.Watch(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the loop a moment to start
	time.Sleep(50 * time.Millisecond)
	os.WriteFile(other, []byte("ignored"), 0644)
	if err := os.WriteFile(path, []byte("case,activity\n1,A\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("changed path = %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	w, err := NewWatcher(zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.Watch(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("watching a missing file should fail")
	}
}
