// Package channel defines the interfaces and event types for the realtime
// conversation channel that delivers live transcripts and call audio to the
// coaching engine.
//
// The two primary abstractions are:
//
//   - [Platform] establishes a session on the channel and returns a [Conn].
//   - [Conn] is an active session that publishes typed [Event] values on a
//     single stream until the call ends or the connection is closed.
//
// Implementations are provided by adapter packages (channel/ws for the
// hosted voice backend, channel/sim for local practice runs). The engine
// consumes events only through this interface and does not know how the
// channel is implemented.
//
// This package lives under pkg/ because alternative channel adapters are
// expected to implement [Platform] and [Conn].
package channel

import (
	"context"
	"time"

	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// EventType classifies the events emitted by a [Conn].
type EventType int

const (
	// EventTranscript carries one finalised utterance with its speaker.
	EventTranscript EventType = iota

	// EventAudio carries an opaque chunk of call audio for archival.
	EventAudio

	// EventEnd signals that the remote side ended the call. It is the last
	// event before the stream closes.
	EventEnd

	// EventError signals a channel failure. It is terminal like EventEnd.
	EventError
)

// String returns the human-readable name of the event type.
func (e EventType) String() string {
	switch e {
	case EventTranscript:
		return "TRANSCRIPT"
	case EventAudio:
		return "AUDIO"
	case EventEnd:
		return "END"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one typed message from the channel. Only the fields relevant to
// Type are populated.
type Event struct {
	Type EventType

	// Speaker and Text are set for EventTranscript.
	Speaker types.Speaker
	Text    string

	// At is the utterance timestamp for EventTranscript.
	At time.Time

	// Chunk is the opaque audio payload for EventAudio.
	Chunk []byte

	// Reason describes why the call ended, for EventEnd.
	Reason string

	// Err is the failure for EventError.
	Err error
}

// Conn is an active session on the realtime channel.
//
// The events stream is closed when the call ends, the channel fails, or
// [Conn.Close] is called. Implementations must be safe for concurrent use.
type Conn interface {
	// Events returns the single ordered event stream for this session.
	// The channel is closed after a terminal event (EventEnd, EventError)
	// or after Close.
	Events() <-chan Event

	// Close tears the session down. It is safe to call Close more than
	// once; subsequent calls are no-ops and return nil.
	Close() error
}

// Platform establishes sessions on a realtime channel.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect performs the channel handshake and returns an active [Conn].
	// The supplied ctx governs the handshake only; once established, the
	// Conn lives until [Conn.Close] or a terminal event.
	Connect(ctx context.Context) (Conn, error)
}
