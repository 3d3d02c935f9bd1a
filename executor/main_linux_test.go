package executor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"testing"
	"time"
)

const helperEnv = "EXECUTOR_TEST_HELPER"

// TestMain runs the test binary as the sandboxed program when the helper
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
		io.Copy(os.Stdout, os.Stdin)
		return 0

	case "exit":
		code, _ := strconv.Atoi(args[0])
		return code

	case "stderr":
		fmt.Fprint(os.Stderr, "diagnostic")
		return 1

	case "sleep":
		time.Sleep(time.Minute)
		return 0

	case "alloc":
		// touch every page so that the memory is resident
		b := make([]byte, 128<<20)
		for i := 0; i < len(b); i += 4096 {
			b[i] = 1
		}
		time.Sleep(5 * time.Second)
		return int(b[0]) - 1

	case "write":
		chunk := make([]byte, 4096)
		for i := 0; i < 1024; i++ {
			os.Stdout.Write(chunk)
		}
		time.Sleep(5 * time.Second)
		return 0

	case "connect":
		fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
		if err != nil {
			return 2
		}
		syscall.Connect(fd, &syscall.SockaddrInet4{Port: 9, Addr: [4]byte{127, 0, 0, 1}})
		return 0

	case "mkdir":
		os.Mkdir(args[0], 0755)
		return 0
	}
	return 127
}
