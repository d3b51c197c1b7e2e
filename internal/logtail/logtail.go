package logtail

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"strings"
)

// Docker prefixes each chunk of a non-TTY stream with an 8 byte header:
// stream type, three zero bytes, then the big-endian payload length.
const frameHeaderLen = 8

// Stream identifies which output a demultiplexed chunk came from.
type Stream byte

const (
	Stdin  Stream = 0
	Stdout Stream = 1
	Stderr Stream = 2
)

// Frame is one chunk of a multiplexed stream.
type Frame struct {
	Stream  Stream
	Payload []byte
}

// Frames splits data into frames. ok is false when data does not look like a
// multiplexed stream; a truncated final frame keeps whatever bytes arrived.
func Frames(data []byte) ([]Frame, bool) {
	if len(data) < frameHeaderLen {
		return nil, false
	}
	var frames []Frame
	for len(data) > 0 {
		if len(data) < frameHeaderLen {
			return nil, false
		}
		stream := Stream(data[0])
		if stream > Stderr || data[1] != 0 || data[2] != 0 || data[3] != 0 {
			return nil, false
		}
		size := int(binary.BigEndian.Uint32(data[4:frameHeaderLen]))
		data = data[frameHeaderLen:]
		if size > len(data) {
			size = len(data)
		}
		frames = append(frames, Frame{Stream: stream, Payload: data[:size]})
		data = data[size:]
	}
	return frames, true
}

// Demux concatenates the payloads of a multiplexed stream.
func Demux(data []byte) ([]byte, bool) {
	frames, ok := Frames(data)
	if !ok {
		return nil, false
	}
	var buf bytes.Buffer
	for _, f := range frames {
		buf.Write(f.Payload)
	}
	return buf.Bytes(), true
}

// Lines returns at most maxLines from the end of text. Multiplexed input is
// demultiplexed first. maxLines <= 0 returns every line.
func Lines(text string, maxLines int) []string {
	if payload, ok := Demux([]byte(text)); ok {
		text = string(payload)
	}
	if text == "" {
		return nil
	}
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
		}
		return lines
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = strings.TrimSuffix(scanner.Text(), "\r")
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines
}
