package forkexec

import (
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	setGIDAllow = []byte("allow")
	setGIDDeny  = []byte("deny")
)

// writeIDMaps writes uid_map, setgroups and gid_map of the child in a new
// user namespace. Without explicit mappings, root inside the namespace maps
// to the effective uid / gid of the monitor.
func writeIDMaps(r *Runner, pid int) error {
	dir := "/proc/" + strconv.Itoa(pid) + "/"

	uidMappings := formatIDMappings(r.UIDMappings, unix.Geteuid())
	if err := writeFile(dir+"uid_map", uidMappings); err != nil {
		return err
	}

	setGroups := setGIDDeny
	if r.GIDMappings != nil && r.GIDMappingsEnableSetgroups {
		setGroups = setGIDAllow
	}
	if err := writeFile(dir+"setgroups", setGroups); err != nil {
		return err
	}

	gidMappings := formatIDMappings(r.GIDMappings, unix.Getegid())
	return writeFile(dir+"gid_map", gidMappings)
}

func formatIDMappings(idMap []syscall.SysProcIDMap, self int) []byte {
	if idMap == nil {
		return []byte("0 " + strconv.Itoa(self) + " 1")
	}
	var sb strings.Builder
	for _, im := range idMap {
		sb.WriteString(strconv.Itoa(im.ContainerID))
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(im.HostID))
		sb.WriteByte(' ')
		sb.WriteString(strconv.Itoa(im.Size))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// writeFile writes the whole content in a single write, as required by the
// id map files
func writeFile(path string, content []byte) error {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if _, err := unix.Write(fd, content); err != nil {
		unix.Close(fd)
		return err
	}
	return unix.Close(fd)
}
