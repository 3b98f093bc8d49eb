package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/max-7189/GraceAi/internal/openai"
)

// framerState tracks where a stream is in its lifecycle. The wire contract is
// strict: one start chunk, any number of delta chunks, exactly one end or
// error chunk, then the [DONE] sentinel.
type framerState int

const (
	stateNotStarted framerState = iota
	stateStreaming
	stateTerminated
)

// streamFramer serialises protocol chunks onto an SSE transport. It is bound
// to a single response writer and must only be used from one goroutine.
type streamFramer struct {
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string
	created int64
	state   framerState
}

func newStreamFramer(w http.ResponseWriter, id, model string, created int64) *streamFramer {
	flusher, _ := w.(http.Flusher)
	return &streamFramer{
		w:       w,
		flusher: flusher,
		id:      id,
		model:   model,
		created: created,
	}
}

// writeEvent emits one data line followed by the blank-line delimiter clients
// rely on to detect chunk boundaries, then flushes past any buffering.
func (f *streamFramer) writeEvent(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(f.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return nil
}

func (f *streamFramer) chunk(delta openai.ChatMessageDelta, finishReason *string) openai.ChatCompletionChunk {
	return openai.NewChunk(f.id, f.model, f.created, delta, finishReason)
}

// Start emits the role-priming chunk and enters the streaming state.
func (f *streamFramer) Start() error {
	if f.state != stateNotStarted {
		return fmt.Errorf("stream already started")
	}
	f.state = stateStreaming
	empty := ""
	return f.writeEvent(f.chunk(openai.ChatMessageDelta{Role: "assistant", Content: &empty}, nil))
}

// Delta forwards one text fragment verbatim as its own chunk.
func (f *streamFramer) Delta(text string) error {
	if f.state != stateStreaming {
		return fmt.Errorf("delta outside streaming state")
	}
	return f.writeEvent(f.chunk(openai.ChatMessageDelta{Content: &text}, nil))
}

// End emits the finish chunk and terminates the stream.
func (f *streamFramer) End(finishReason string) error {
	if f.state != stateStreaming {
		return fmt.Errorf("end outside streaming state")
	}
	f.state = stateTerminated
	return f.writeEvent(f.chunk(openai.ChatMessageDelta{}, &finishReason))
}

// Fail emits the inline error chunk and terminates the stream, skipping the
// finish chunk. It is valid in any non-terminated state.
func (f *streamFramer) Fail(err error) error {
	if f.state == stateTerminated {
		return fmt.Errorf("stream already terminated")
	}
	f.state = stateTerminated
	return f.writeEvent(openai.NewStreamError(err.Error()))
}

// Terminated reports whether an end or error chunk was already written.
func (f *streamFramer) Terminated() bool {
	return f.state == stateTerminated
}

// Done writes the unconditional [DONE] sentinel closing the stream.
func (f *streamFramer) Done() error {
	if _, err := io.WriteString(f.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if f.flusher != nil {
		f.flusher.Flush()
	}
	return nil
}
