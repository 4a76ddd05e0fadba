package auth

import "time"

// SetNowFunc replaces the clock of the package until the returned func is called.
func SetNowFunc(now func() time.Time) (reset func()) {
	nowFunc = now
	return func() { nowFunc = time.Now }
}
