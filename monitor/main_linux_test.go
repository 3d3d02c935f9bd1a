package monitor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

const helperEnv = "MONITOR_TEST_HELPER"

// TestMain runs the test binary as the judged program when the helper
// variable is set
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func runHelper(mode string, args []string) int {
	switch mode {
	case "echo":
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			fmt.Println(sc.Text())
		}
		return 0

	case "sleep":
		d, _ := time.ParseDuration(args[0])
		time.Sleep(d)
		return 0

	case "alloc":
		n, _ := strconv.Atoi(args[0])
		b := make([]byte, n<<20)
		for i := 0; i < len(b); i += 4096 {
			b[i] = 1
		}
		time.Sleep(5 * time.Second)
		return int(b[0]) - 1

	case "connect":
		fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
		if err != nil {
			return 2
		}
		syscall.Connect(fd, &syscall.SockaddrInet4{Port: 9, Addr: [4]byte{127, 0, 0, 1}})
		return 0

	case "adder":
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			n, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
			if err != nil {
				return 1
			}
			fmt.Println(n + 1)
		}
		return 0

	case "interactor":
		return interact(args[0], args[1], args[2])
	}
	return 127
}

// interact sends every number of the input file and expects the matching
// number of the expected file back
func interact(input, expected, report string) int {
	in, err := os.ReadFile(input)
	if err != nil {
		return 3
	}
	exp, err := os.ReadFile(expected)
	if err != nil {
		return 3
	}
	want := strings.Fields(string(exp))
	sc := bufio.NewScanner(os.Stdin)
	for i, q := range strings.Fields(string(in)) {
		fmt.Println(q)
		if !sc.Scan() {
			os.WriteFile(report, []byte("no answer to "+q), 0o644)
			return CheckerWrongAnswer
		}
		if i >= len(want) || strings.TrimSpace(sc.Text()) != want[i] {
			os.WriteFile(report, []byte("wrong answer to "+q), 0o644)
			return CheckerWrongAnswer
		}
	}
	os.WriteFile(report, []byte("ok"), 0o644)
	return CheckerAccepted
}
