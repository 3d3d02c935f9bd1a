package forkexec

import (
	"syscall"
)

// execParams are the C strings the child needs, allocated before clone since
// the child cannot allocate
type execParams struct {
	argv0   *byte
	argv    []*byte
	env     []*byte
	workDir *byte
	chroot  *byte
}

func (r *Runner) prepareExec() (*execParams, error) {
	if len(r.Args) == 0 {
		return nil, syscall.EINVAL
	}
	var (
		ep  execParams
		err error
	)
	if ep.argv0, err = syscall.BytePtrFromString(r.Args[0]); err != nil {
		return nil, err
	}
	if ep.argv, err = syscall.SlicePtrFromStrings(r.Args); err != nil {
		return nil, err
	}
	if ep.env, err = syscall.SlicePtrFromStrings(r.Env); err != nil {
		return nil, err
	}
	if ep.workDir, err = optionalString(r.WorkDir); err != nil {
		return nil, err
	}
	if ep.chroot, err = optionalString(r.Chroot); err != nil {
		return nil, err
	}
	return &ep, nil
}

// childFds returns the descriptors to install as 0..n-1 and the first
// descriptor above all of them, where the child moves them before dup3
func childFds(files []uintptr) ([]int, int) {
	fd := make([]int, len(files))
	next := len(files)
	for i, f := range files {
		fd[i] = int(f)
		next = max(next, fd[i])
	}
	return fd, next + 1
}

// optionalString returns nil for the empty string
func optionalString(s string) (*byte, error) {
	if s == "" {
		return nil, nil
	}
	return syscall.BytePtrFromString(s)
}
