package cgroup

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DetectType detects current mounted cgroup type in systemd default path
func DetectType() Type {
	var st unix.Statfs_t
	if err := unix.Statfs(basePath, &st); err != nil {
		return TypeNone
	}
	switch st.Type {
	case unix.CGROUP2_SUPER_MAGIC:
		return TypeV2
	case unix.TMPFS_MAGIC, unix.CGROUP_SUPER_MAGIC:
		return TypeV1
	}
	return TypeNone
}

// parseKeyed reads the value for key from a flat keyed file such as
// cpu.stat or memory.events
func parseKeyed(b []byte, key string) (uint64, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		parts := strings.Fields(s.Text())
		if len(parts) == 2 && parts[0] == key {
			return strconv.ParseUint(parts[1], 10, 64)
		}
	}
	return 0, os.ErrNotExist
}

// parseSelfCgroup returns the v2 path from the content of /proc/self/cgroup
func parseSelfCgroup(b []byte) (string, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	for s.Scan() {
		if p, ok := strings.CutPrefix(s.Text(), "0::"); ok {
			return p, nil
		}
	}
	return "", os.ErrNotExist
}

func readFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	for err != nil && errors.Is(err, syscall.EINTR) {
		data, err = os.ReadFile(p)
	}
	return data, err
}

func writeFile(p string, content []byte) error {
	err := os.WriteFile(p, content, filePerm)
	for err != nil && errors.Is(err, syscall.EINTR) {
		err = os.WriteFile(p, content, filePerm)
	}
	return err
}
