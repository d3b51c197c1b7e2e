package logtail

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func frame(stream Stream, payload string) []byte {
	header := make([]byte, frameHeaderLen)
	header[0] = byte(stream)
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

func TestLines(t *testing.T) {
	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "read all (0)", maxLines: 0, expected: expectedAll},
		{name: "read all (negative)", maxLines: -1, expected: expectedAll},
		{name: "read partial (5)", maxLines: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", maxLines: 10, expected: expectedAll},
		{name: "read more than exists (20)", maxLines: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lines(content.String(), tt.maxLines)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Lines() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLines_EmptyInput(t *testing.T) {
	if got := Lines("", 10); got != nil {
		t.Fatalf("Lines(\"\") = %v, want nil", got)
	}
}

func TestLines_StripsCarriageReturns(t *testing.T) {
	got := Lines("a\r\nb\r\n", 0)
	if !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("Lines() = %q, want [a b]", got)
	}
}

func TestLines_DemultiplexesDockerStream(t *testing.T) {
	var raw []byte
	raw = append(raw, frame(Stdout, "out 1\n")...)
	raw = append(raw, frame(Stderr, "err 1\n")...)
	raw = append(raw, frame(Stdout, "out 2\n")...)

	got := Lines(string(raw), 2)
	want := []string{"err 1", "out 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Lines() = %q, want %q", got, want)
	}
}

func TestFrames(t *testing.T) {
	raw := append(frame(Stdout, "hello"), frame(Stderr, "oops")...)
	frames, ok := Frames(raw)
	if !ok {
		t.Fatalf("Frames ok = false, want true")
	}
	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	if frames[0].Stream != Stdout || string(frames[0].Payload) != "hello" {
		t.Fatalf("frames[0] = %+v, want stdout hello", frames[0])
	}
	if frames[1].Stream != Stderr || string(frames[1].Payload) != "oops" {
		t.Fatalf("frames[1] = %+v, want stderr oops", frames[1])
	}
}

func TestFrames_TruncatedPayloadIsKept(t *testing.T) {
	raw := frame(Stdout, "complete")
	raw = raw[:len(raw)-3]
	frames, ok := Frames(raw)
	if !ok || len(frames) != 1 {
		t.Fatalf("Frames = %v, %v; want one frame", frames, ok)
	}
	if string(frames[0].Payload) != "compl" {
		t.Fatalf("payload = %q, want compl", frames[0].Payload)
	}
}

func TestDemux_RejectsPlainText(t *testing.T) {
	for _, input := range []string{"", "short", "plain text log line\n"} {
		if _, ok := Demux([]byte(input)); ok {
			t.Errorf("Demux(%q) ok = true, want false", input)
		}
	}
}
