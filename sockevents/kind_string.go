// Code generated by "stringer -type=Kind"; hand-maintained here since this
// module doesn't run go generate as part of its build.

package sockevents

import "strconv"

func (k Kind) String() string {
	switch k {
	case Collected:
		return "Collected"
	case Dumped:
		return "Dumped"
	case Deferred:
		return "Deferred"
	case Loaded:
		return "Loaded"
	case Opened:
		return "Opened"
	case Connected:
		return "Connected"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}
