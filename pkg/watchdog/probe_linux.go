package watchdog

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strconv"

	"github.com/judgecore/sandbox/runner"
)

var errNoHWM = errors.New("watchdog: VmHWM not found")

// ProcMemory returns a probe reading the resident set high water mark
// (VmHWM) of pid from /proc/<pid>/status
func ProcMemory(pid int) func() (runner.Size, error) {
	p := "/proc/" + strconv.Itoa(pid) + "/status"
	return func() (runner.Size, error) {
		b, err := os.ReadFile(p)
		if err != nil {
			return 0, err
		}
		return parseHWM(b)
	}
}

func parseHWM(b []byte) (runner.Size, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		f := bytes.Fields(s.Bytes())
		if len(f) >= 2 && string(f[0]) == "VmHWM:" {
			kb, err := strconv.ParseUint(string(f[1]), 10, 64)
			if err != nil {
				return 0, err
			}
			return runner.Size(kb << 10), nil
		}
	}
	return 0, errNoHWM
}
