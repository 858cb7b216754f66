package helper

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestCalculateBackoff_ZeroAttempt(t *testing.T) {
	if got := CalculateBackoff(time.Second, 0); got != 0 {
		t.Errorf("expected 0 for attempt 0, got %v", got)
	}
}

func TestCalculateBackoff_FirstAttempt(t *testing.T) {
	got := CalculateBackoff(100*time.Millisecond, 1)
	// 2^1 * 100ms = 200ms, +/-25% jitter
	if got < 150*time.Millisecond || got > 250*time.Millisecond {
		t.Errorf("expected backoff between 150ms and 250ms, got %v", got)
	}
}

func TestCalculateBackoff_Capped(t *testing.T) {
	got := CalculateBackoff(time.Second, 20)
	if got > 37500*time.Millisecond {
		t.Errorf("expected backoff capped near 30s, got %v", got)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), 3, time.Millisecond, 0, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("Retry() = %q after %d calls, want ok after 3", got, calls)
	}
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), 2, time.Millisecond, 0, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	if err == nil || err.Error() != "down" {
		t.Fatalf("Retry() error = %v, want down", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_AppliesTimeout(t *testing.T) {
	_, err := Retry(context.Background(), 0, 0, 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Retry() error = %v, want deadline exceeded", err)
	}
}

func TestWithTempFile_RemovesOnSuccessAndFailure(t *testing.T) {
	var seen string
	err := WithTempFile([]byte("%PDF-1.4"), ".pdf", func(path string) error {
		seen = path
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if string(data) != "%PDF-1.4" {
			t.Errorf("temp file content = %q", data)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTempFile() error = %v", err)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("temp file %s still exists after success", seen)
	}

	wantErr := errors.New("parse failed")
	err = WithTempFile([]byte("x"), ".pdf", func(path string) error {
		seen = path
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("WithTempFile() error = %v, want %v", err, wantErr)
	}
	if _, err := os.Stat(seen); !os.IsNotExist(err) {
		t.Errorf("temp file %s still exists after failure", seen)
	}
}

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateUUID()
	if a == b || len(a) != 36 {
		t.Errorf("GenerateUUID() = %q, %q", a, b)
	}
}
