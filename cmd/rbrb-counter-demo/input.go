package main

import "time"

// localInput stands in for the original demo's keyboard poll: this
// headless binary has no display to read arrow keys from, so it drives
// the counter with a scripted action on a fixed period instead. A real
// host would replace this with its own input device.
type localInput struct {
	period time.Duration
	next   action
	due    time.Time
}

func newLocalInput(period time.Duration, first action) *localInput {
	return &localInput{period: period, next: first, due: time.Now().Add(period)}
}

// capture returns the scripted action if its due time has arrived,
// flipping between increment and decrement each time, or actionNone
// otherwise.
func (l *localInput) capture(now time.Time) action {
	if now.Before(l.due) {
		return actionNone
	}
	l.due = now.Add(l.period)

	result := l.next
	if l.next == actionIncrement {
		l.next = actionDecrement
	} else {
		l.next = actionIncrement
	}
	return result
}
