package transport

import "time"

// maxShift bounds the doubling loop so large attempt counts cannot
// overflow the duration.
const maxShift = 30

// Delay computes the reconnect backoff for a retry attempt:
// min(2^attempt * 1s, cap). The attempt counter resets to zero on a
// successful open, so delays are non-decreasing between opens.
func Delay(attempt int, cap time.Duration) time.Duration {
	d := time.Second
	for i := 0; i < attempt && i < maxShift; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
