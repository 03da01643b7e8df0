package console

import (
	"bytes"
	"testing"
)

func TestWriterAppendsNewline(t *testing.T) {
	var buf bytes.Buffer
	c := NewWriter(&buf)

	if err := c.WriteLine([]byte("Hello, world!")); err != nil {
		t.Fatal(err)
	}
	if err := Printf(c, "[Kernel] %s", "Boot success"); err != nil {
		t.Fatal(err)
	}
	if exp, got := "Hello, world!\n[Kernel] Boot success\n", buf.String(); exp != got {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestRecorderCopiesLines(t *testing.T) {
	var r Recorder
	p := []byte("abc")
	_ = r.WriteLine(p)
	p[0] = 'x'

	lines := r.Lines()
	if len(lines) != 1 || string(lines[0]) != "abc" {
		t.Fatalf("expected recorded line %q; got %q", "abc", lines)
	}
	if !r.Contains("bc") || r.Contains("xb") {
		t.Fatal("unexpected Contains result")
	}
}
