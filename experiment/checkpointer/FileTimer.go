package checkpointer

import (
	"fmt"
	"time"
)

// timestampLayout sorts lexically in time order
const timestampLayout = "20060102T150405.000000000Z"

// FileTimer returns a function which names files by the UTC time at
// which it is called. Calls within the same clock reading get a
// counter suffix so that no name is returned twice. If now is nil,
// time.Now is used.
func FileTimer(filename, extension string, now func() time.Time) func() string {
	if now == nil {
		now = time.Now
	}
	var last string
	var repeats int
	return func() string {
		stamp := now().UTC().Format(timestampLayout)
		if stamp == last {
			repeats++
			return fmt.Sprintf("%v-%v-%v%v", filename, stamp, repeats,
				extension)
		}
		last, repeats = stamp, 0
		return fmt.Sprintf("%v-%v%v", filename, stamp, extension)
	}
}
