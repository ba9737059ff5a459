package bridge

import (
	"github.com/cockroachdb/errors"

	codelet "github.com/Paranoid-AF/codelet"
)

// Event is one unit of work for the bridge worker. The set of events is
// closed; the worker switches over every implementation.
type Event interface {
	isEvent()
}

// DidOpen stores the full text of a newly opened file.
type DidOpen struct {
	File string
	Text string
}

// DidChange replaces the stored text of a file.
type DidChange struct {
	File string
	Text string
}

// DidClose forgets a file.
type DidClose struct {
	File string
}

// Completion asks for suggestions for the stored text of File.
type Completion struct {
	RequestID int
	File      string
}

// StatusRequest asks for a status notification.
type StatusRequest struct {
	File string
}

// Reconfigure replaces the active configuration.
type Reconfigure struct {
	Config *codelet.Config
}

func (DidOpen) isEvent()       {}
func (DidChange) isEvent()     {}
func (DidClose) isEvent()      {}
func (Completion) isEvent()    {}
func (StatusRequest) isEvent() {}
func (Reconfigure) isEvent()   {}

// ErrInvalidMessage is returned by FromMessage for messages that do not map
// onto an event.
var ErrInvalidMessage = errors.New("invalid message")

// FromMessage converts a wire message into an Event.
func FromMessage(m *codelet.Message) (Event, error) {
	file := m.Path()
	switch m.Type {
	case codelet.TypeDidOpen:
		if file == "" {
			return nil, errors.Wrap(ErrInvalidMessage, "didOpen without file")
		}
		return DidOpen{File: file, Text: m.Msg.Text}, nil
	case codelet.TypeDidChange:
		if file == "" {
			return nil, errors.Wrap(ErrInvalidMessage, "didChange without file")
		}
		return DidChange{File: file, Text: m.Msg.Text}, nil
	case codelet.TypeDidClose:
		if file == "" {
			return nil, errors.Wrap(ErrInvalidMessage, "didClose without file")
		}
		return DidClose{File: file}, nil
	case codelet.TypeCompletion:
		return Completion{RequestID: m.ID, File: file}, nil
	case codelet.TypeStatus:
		return StatusRequest{File: file}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidMessage, "unknown type %q", m.Type)
	}
}
