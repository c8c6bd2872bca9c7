package session

import (
	"math/rand"
	"time"
)

// proactiveDelay samples the wait before a proactive trigger for one idle
// period. The draw is exponential with mean 50s/level on top of the minimum
// idle time, matching a 1% chance per half-second poll at full level.
// Level 0 disables the trigger entirely.
func proactiveDelay(rng *rand.Rand, level float64, minIdle time.Duration) (time.Duration, bool) {
	if level <= 0 {
		return 0, false
	}
	if level > 1 {
		level = 1
	}
	mean := 50 * float64(time.Second) / level
	return minIdle + time.Duration(rng.ExpFloat64()*mean), true
}
