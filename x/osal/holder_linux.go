//go:build linux

package osal

import "golang.org/x/sys/unix"

// defaultHolder names the OS thread running the caller.
func defaultHolder() Holder { return Holder(unix.Gettid()) }
