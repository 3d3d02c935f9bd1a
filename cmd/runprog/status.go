package main

import "github.com/judgecore/sandbox/verdict"

// Status is the result code of the run command, compatible with uoj
// run_program
type Status int

// uoj run_program constants
const (
	StatusNormal  Status = iota // 0
	StatusInvalid               // 1
	StatusRE                    // 2
	StatusMLE                   // 3
	StatusTLE                   // 4
	StatusOLE                   // 5
	StatusBan                   // 6
	StatusFatal                 // 7
)

func getStatus(c verdict.Category) Status {
	switch c {
	case verdict.Accepted, verdict.WrongOutput:
		return StatusNormal
	case verdict.TimeLimitExceeded:
		return StatusTLE
	case verdict.MemoryLimitExceeded:
		return StatusMLE
	case verdict.OutputLimitExceeded:
		return StatusOLE
	case verdict.RestrictedOperation:
		return StatusBan
	case verdict.RuntimeError:
		return StatusRE
	default:
		return StatusFatal
	}
}
