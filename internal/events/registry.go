package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// puzzle
	"puzzle.solved":    {},
	"puzzle.duplicate": {},
	"solve.ignored":    {},

	// lock
	"lock.released": {},
	"lock.fault":    {},

	// device
	"device.connected":    {},
	"device.disconnected": {},
	"device.input":        {},
	"device.error":        {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
