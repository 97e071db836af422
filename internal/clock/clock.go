package clock

import "time"

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// System uses the system time in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}
