package agent

import (
	"strings"
	"testing"
)

func TestTruncateMiddle(t *testing.T) {
	short := "short output"
	if got := truncateMiddle(short, 100); got != short {
		t.Fatalf("short output modified: %q", got)
	}

	long := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	got := truncateMiddle(long, 200)
	if !strings.HasPrefix(got, strings.Repeat("a", 100)) {
		t.Fatalf("head not preserved: %q", got[:120])
	}
	if !strings.HasSuffix(got, strings.Repeat("z", 100)) {
		t.Fatalf("tail not preserved: %q", got[len(got)-120:])
	}
	if !strings.Contains(got, "800 characters removed") {
		t.Fatalf("marker missing or wrong: %q", got)
	}
}

func TestTruncateLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("line\n")
	}
	got := truncateLines(strings.TrimSuffix(b.String(), "\n"), 10)
	if !strings.Contains(got, "[... 90 lines omitted ...]") {
		t.Fatalf("omission marker missing: %q", got)
	}
}

func TestTruncateToolOutputLimits(t *testing.T) {
	payload := strings.Repeat("x", 60000)

	if got := truncateToolOutput(payload, "read_file"); len(got) < 50000 {
		t.Fatalf("read_file truncated below its limit: %d chars", len(got))
	}
	if got := truncateToolOutput(payload, "write_file"); len(got) > 2000 {
		t.Fatalf("write_file output not bounded: %d chars", len(got))
	}
	// unknown tools fall back to the default limit
	got := truncateToolOutput(payload, "mystery")
	if len(got) > defaultCharLimit+200 {
		t.Fatalf("default limit not applied: %d chars", len(got))
	}
}
