//go:build !windows

package platform

// ExitAbort is the status a shell reports for a process killed by SIGABRT.
// The abort path exits with it instead of raising the signal, so a program
// that returns 134 is indistinguishable from an abort.
const ExitAbort = 128 + 6
