package flowise

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/mwiater/flowpipe/internal/providers"
	"github.com/mwiater/flowpipe/internal/util"
)

// Stream event kinds emitted by Flowise. EventText is synthesized for payloads
// that carry a final answer without an event kind.
const (
	EventToken = "token"
	EventEnd   = "end"
	EventError = "error"
	EventText  = "text"
)

const (
	dataPrefix    = "data:"
	maxLineLength = 4 << 20
)

// Event is one decoded stream envelope.
type Event struct {
	Kind string
	Text string
}

// Lines yields the lines of r without their terminators. A line longer than
// 4 MiB is dropped and reported as a MalformedEventError; reading continues with
// the next line. A read failure is yielded once as the final element.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return readLines(r, maxLineLength)
}

func readLines(r io.Reader, limit int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		br := bufio.NewReaderSize(r, 64*1024)
		var line []byte
		var head string
		oversized := false
		for {
			chunk, err := br.ReadSlice('\n')
			if !oversized {
				line = append(line, chunk...)
				if len(bytes.TrimRight(line, "\r\n")) > limit {
					oversized = true
					head = util.TruncateRunes(string(line[:min(len(line), 256)]), 64)
					line = line[:0]
				}
			}
			if errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			if err != nil && err != io.EOF {
				yield("", err)
				return
			}

			switch {
			case oversized:
				if !yield("", &providers.MalformedEventError{Line: head, Err: bufio.ErrTooLong}) {
					return
				}
			case len(line) > 0:
				if !yield(strings.TrimRight(string(line), "\r\n"), nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			line = line[:0]
			oversized = false
		}
	}
}

// ParseEvent decodes a single stream line. ok is false for lines that are not
// data lines or whose payload carries nothing of interest.
func ParseEvent(line string) (Event, bool, error) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false, nil
	}
	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == "" {
		return Event{}, false, nil
	}

	v, err := decodeJSON([]byte(payload))
	if err != nil {
		return Event{}, false, &providers.MalformedEventError{Line: line, Err: err}
	}

	switch t := v.(type) {
	case string:
		return Event{Kind: EventText, Text: t}, true, nil
	case map[string]any:
		if kind, ok := t["event"].(string); ok && kind != "" {
			return Event{Kind: kind, Text: textOf(t["data"])}, true, nil
		}
		if text, ok := Field("text")(t); ok {
			return Event{Kind: EventText, Text: text}, true, nil
		}
	}
	return Event{}, false, nil
}

// Events decodes data lines into events. Malformed lines are reported to
// onMalformed, when set, and skipped.
func Events(lines iter.Seq2[string, error], onMalformed func(*providers.MalformedEventError)) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for line, err := range lines {
			var malformed *providers.MalformedEventError
			if errors.As(err, &malformed) {
				if onMalformed != nil {
					onMalformed(malformed)
				}
				continue
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			ev, ok, perr := ParseEvent(line)
			if perr != nil {
				if errors.As(perr, &malformed) && onMalformed != nil {
					onMalformed(malformed)
				}
				continue
			}
			if !ok {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Tokens reduces events to answer text. The sequence ends at an end event or
// when events run out; an error event ends it with a RemoteError and a read
// failure ends it with a StreamInterruptedError.
func Tokens(events iter.Seq2[Event, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		count := 0
		for ev, err := range events {
			if err != nil {
				yield("", &providers.StreamInterruptedError{Tokens: count, Err: err})
				return
			}
			switch ev.Kind {
			case EventToken, EventText:
				if ev.Text == "" {
					continue
				}
				count++
				if !yield(ev.Text, nil) {
					return
				}
			case EventEnd:
				return
			case EventError:
				yield("", &providers.RemoteError{StatusCode: http.StatusOK, Body: ev.Text, Err: providers.ErrWorkflowEvent})
				return
			}
		}
	}
}
