// Package executor runs one program under a sandbox policy and reports how
// it terminated together with its resource usage.
//
// The child is created in its own session with its standard streams in
// place, its resource ceilings in force and the operation filter loaded
// before the target program is executed. In record mode the child is traced
// so that the first restricted operation can be named; in kill mode the
// kernel kills the child on the first restricted operation.
//
// The pid of the child is only signalled while the child has not been
// reaped: the executor peeks at its termination with waitid(WNOWAIT),
// releases the handle shared with the watchdog, and only then reaps it.
package executor
