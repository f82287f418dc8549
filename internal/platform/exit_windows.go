//go:build windows

package platform

// ExitAbort is the status abort() reports under the Microsoft C runtime.
// A program that returns 3 is indistinguishable from an abort.
const ExitAbort = 3
