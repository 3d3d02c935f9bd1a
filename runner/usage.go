package runner

import (
	"fmt"
	"time"
)

// Usage is the resource accounting of one run
type Usage struct {
	CPUTime     Metric[time.Duration] // user + system CPU time of the child tree
	WallTime    Metric[time.Duration] // request start to observed termination
	PeakMemory  Metric[Size]          // peak resident memory
	OutputBytes Metric[Size]          // bytes written to stdout (capped at limit + 1 when captured)
}

// Unknown lists the metrics that could not be measured
func (u Usage) Unknown() []string {
	var ret []string
	if !u.CPUTime.Known {
		ret = append(ret, "cpuTime")
	}
	if !u.WallTime.Known {
		ret = append(ret, "wallTime")
	}
	if !u.PeakMemory.Known {
		ret = append(ret, "peakMemory")
	}
	if !u.OutputBytes.Known {
		ret = append(ret, "outputBytes")
	}
	return ret
}

func (u Usage) String() string {
	return fmt.Sprintf("Usage[cpu=%v wall=%v mem=%v out=%v]", u.CPUTime, u.WallTime, u.PeakMemory, u.OutputBytes)
}
