package board

import "taskboard/events"

// WatchCompletion publishes BoardCompleted whenever published progress
// shows every task on a non-empty board done.
func WatchCompletion(bus *events.Bus) *events.Subscription {
	return events.On(bus, func(ev events.ProgressChanged) {
		if ev.Progress.Complete() {
			bus.Publish(events.BoardCompleted{Progress: ev.Progress})
		}
	})
}
