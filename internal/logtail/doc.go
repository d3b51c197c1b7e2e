// Package logtail turns raw container log output into displayable lines.
//
// Containers started without a TTY multiplex stdout and stderr into one byte
// stream, prefixing every chunk with an 8 byte header. Frames and Demux undo
// that framing; Lines demultiplexes when needed and keeps only the last N
// lines using a ring buffer, so memory stays O(N) however long the log is.
//
//	text, err := client.FetchLogs(ctx, id, endpointID, portainer.LogOptions{Tail: 500})
//	if err != nil {
//		return err
//	}
//	for _, line := range logtail.Lines(text, 200) {
//		fmt.Println(line)
//	}
//
// Input that is not multiplexed is used as is. A truncated final frame is kept
// rather than dropped, because the server may cut the stream at the tail limit.
package logtail
