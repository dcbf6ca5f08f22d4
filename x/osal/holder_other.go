//go:build !linux

package osal

func defaultHolder() Holder { return NotSet }
