// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package eventloop

import (
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// fdWaker blocks in poll(2) on the read end of a wake fd.
type fdWaker struct {
	pending atomic.Uint32 // wake-up deduplication
	closed  atomic.Bool
	readFd  int
	writeFd int
	buf     [8]byte
	pfd     [1]unix.PollFd
}

func newFDWaker() (waker, error) {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return nil, err
	}
	w := &fdWaker{
		readFd:  readFd,
		writeFd: writeFd,
	}
	w.pfd[0] = unix.PollFd{Fd: int32(readFd), Events: unix.POLLIN}
	return w, nil
}

func (w *fdWaker) wait(timeout time.Duration) error {
	w.pfd[0].Revents = 0
	_, err := unix.Poll(w.pfd[:], pollTimeoutMillis(timeout))
	if err == unix.EINTR {
		err = nil
	}
	if err != nil {
		return err
	}
	if w.pfd[0].Revents&unix.POLLIN != 0 {
		w.drain()
	}
	return nil
}

// drain resets pending before reading, so a racing wake is never lost, at
// worst it causes one spurious wake-up.
func (w *fdWaker) drain() {
	w.pending.Store(0)
	for {
		if _, err := unix.Read(w.readFd, w.buf[:]); err != nil {
			break
		}
	}
}

func (w *fdWaker) wake() error {
	if w.closed.Load() {
		return ErrLoopTerminated
	}
	if !w.pending.CompareAndSwap(0, 1) {
		return nil
	}
	// native endianness, eventfd requires an 8 byte write
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	if _, err := unix.Write(w.writeFd, buf); err != nil && err != unix.EAGAIN {
		w.pending.Store(0)
		return err
	}
	return nil
}

func (w *fdWaker) close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(w.readFd)
	if w.writeFd != w.readFd {
		if e := unix.Close(w.writeFd); err == nil {
			err = e
		}
	}
	return err
}

// pollTimeoutMillis converts to poll(2) milliseconds, rounding any positive
// sub-millisecond remainder up, so timers never fire early.
func pollTimeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	return int(ms)
}
