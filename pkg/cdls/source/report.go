package source

import (
	"fmt"
	"time"
)

// Report : load metrics for a single load operation.
type Report struct {
	Identifier      string
	LatestRecord    time.Time
	NumberProcessed int
	NumberSuccesses int
	Successful      bool
	TimeElapsed     time.Duration
}

func (r *Report) String() string {
	passfail := "FAIL"
	if r.Successful {
		passfail = "OK"
	}
	return fmt.Sprintf("::[%s %s] (%4d/%4d) in %0.3f seconds",
		r.Identifier, passfail, r.NumberSuccesses, r.NumberProcessed, r.TimeElapsed.Seconds())
}
