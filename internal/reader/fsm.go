package reader

import (
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

const (
	stateInitialized = "initialized"
	stateReading     = "reading"
	stateEnded       = "ended"
	stateClosed      = "closed"

	eventRead  = "read"
	eventEnd   = "end"
	eventClose = "close"
)

//go:generate sh -c "cd ../../ && go run ./cmd/hlsread -dump-fsm | dot -Tsvg /dev/stdin -o fsm.svg"
func (r *Reader) newFSM() *fsm.FSM {
	return fsm.NewFSM(
		stateInitialized,
		fsm.Events{
			{Name: eventRead, Src: []string{stateInitialized}, Dst: stateReading},
			{Name: eventEnd, Src: []string{stateReading}, Dst: stateEnded},
			{Name: eventClose, Src: []string{stateEnded}, Dst: stateClosed},
		},
		fsm.Callbacks{
			"enter_" + stateEnded: func(e *fsm.Event) {
				// Nothing left can change, so pending polls are moot.
				r.cancelAll()
			},
			"enter_" + stateClosed: func(e *fsm.Event) {
				r.cancelAll()
				r.untrackAll()
			},
			"after_event": func(e *fsm.Event) {
				r.log.Debugf("[%s -> %s] %s", e.Src, e.Dst, e.Event)
			},
		},
	)
}

// GetFSM exposes the state machine for visualisation.
func (r *Reader) GetFSM() *fsm.FSM {
	return r.fsm
}

func (r *Reader) pushEvent(name string) error {
	err := r.fsm.Event(name)
	if err == nil {
		return nil
	}
	if _, ok := err.(fsm.NoTransitionError); ok {
		return nil
	}
	return errors.Wrapf(ErrInvalidState, "event %q in state %q: %v", name, r.fsm.Current(), err)
}
