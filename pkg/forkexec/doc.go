// Package forkexec creates the sandboxed child with a raw clone and drives it
// through a fixed setup sequence before execve:
//
//	clone -> dup3 stdio -> setsid -> chroot / chdir -> prlimit64 ->
//	no_new_privs -> drop capabilities -> sync with parent ->
//	[ptrace_me + SIGSTOP] -> seccomp -> execve
//
// The parent is told through a socket pair when the child reached the sync
// point, may attach accounting (SyncFunc), then acknowledges. Any failure in
// the child is written back as a ChildError and the child exits; the parent
// kills and reaps it before returning.
//
// seccomp, unshare pid / user namespaces requires kernel >= 3.8
// pipe2, dup3 requires kernel >= 2.6.27
package forkexec
