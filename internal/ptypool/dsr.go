//go:build unix

package ptypool

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// dsrQuery is one of the four recognized Device Status Report queries.
type dsrQuery struct {
	bytes []byte
	reply []byte
}

var dsrQueries = []dsrQuery{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b[5n"), []byte("\x1b[0n")},
	{[]byte("\x1b[?6n"), []byte("\x1b[?1;1R")},
	{[]byte("\x1b[?5n"), []byte("\x1b[0n")},
}

// DSRFilter intercepts the four recognized DSR queries byte-by-byte and
// answers them directly against the master fd, forwarding everything else
// unchanged. It must be byte-at-a-time because reads straddle escape
// sequences.
type DSRFilter struct {
	pending []byte
	replyFn func([]byte) error
}

// NewDSRFilter constructs a filter that writes replies via replyFn (usually
// a retrying write to the pty master fd).
func NewDSRFilter(replyFn func([]byte) error) *DSRFilter {
	return &DSRFilter{replyFn: replyFn}
}

// Feed processes input, returning the bytes that should continue downstream
// (scrollback + UI event) with all recognized query sequences removed.
func (f *DSRFilter) Feed(input []byte) []byte {
	out := make([]byte, 0, len(input))

	for i := 0; i < len(input); i++ {
		f.pending = append(f.pending, input[i])

		matched, isQuery := matchQueries(f.pending)
		if !matched {
			// Still a valid prefix of some query; keep accumulating.
			continue
		}
		if isQuery >= 0 {
			if f.replyFn != nil {
				_ = f.replyFn(dsrQueries[isQuery].reply)
			}
			f.pending = f.pending[:0]
			continue
		}

		// No longer a prefix of any query. The byte that broke the match
		// may itself begin a new query (e.g. an abandoned "\x1b[6" directly
		// followed by "\x1b[6n"), so flush everything except that byte and
		// re-scan it against a clean state instead of discarding it.
		if len(f.pending) == 1 {
			out = append(out, f.pending...)
			f.pending = f.pending[:0]
			continue
		}
		out = append(out, f.pending[:len(f.pending)-1]...)
		f.pending = f.pending[:0]
		i--
	}

	return out
}

// matchQueries reports whether pending exactly equals a known query
// (isQuery = its index) or, failing that and pending can no longer be a
// prefix of any query, that it should be flushed verbatim (isQuery = -1
// with matched = true). matched = false means keep accumulating.
func matchQueries(pending []byte) (matched bool, isQuery int) {
	for i, q := range dsrQueries {
		if string(pending) == string(q.bytes) {
			return true, i
		}
	}
	if couldBePrefix(pending) {
		return false, -1
	}
	return true, -1
}

// couldBePrefix reports whether pending is a prefix of at least one
// recognized query.
func couldBePrefix(pending []byte) bool {
	if len(pending) == 0 {
		return true
	}
	for _, q := range dsrQueries {
		if len(pending) <= len(q.bytes) && string(pending) == string(q.bytes[:len(pending)]) {
			return true
		}
	}
	return false
}

// WriteDSRReply writes a DSR reply directly to a master fd, tolerating
// EINTR and EAGAIN/EWOULDBLOCK by polling for POLLOUT briefly and retrying
// up to three passes; if still blocked, the reply is dropped rather than
// stall the pump. Exported so the output pump (package session) can use it
// as the DSRFilter's replyFn without reimplementing the retry contract.
func WriteDSRReply(fd uintptr, reply []byte) error {
	remaining := reply

	for attempt := 0; attempt < 3; attempt++ {
		n, err := unix.Write(int(fd), remaining)
		if err == nil {
			remaining = remaining[n:]
			if len(remaining) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			pollForWritable(fd, 20*time.Millisecond)
			continue
		}
		return newErr(KindIO, "dsr reply write", err)
	}
	// Still blocked after three passes: drop rather than stall the pump.
	return nil
}

func pollForWritable(fd uintptr, timeout time.Duration) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	_, _ = unix.Poll(fds, int(timeout.Milliseconds()))
}
