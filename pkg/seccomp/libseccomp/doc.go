// Package libseccomp compiles allow / trace / deny syscall sets into a
// seccomp BPF program with go-seccomp-bpf, and maps syscall numbers back to
// names for the native architecture.
package libseccomp
