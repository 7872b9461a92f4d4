//go:build unix

package session

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/trybotster/synkd/internal/ptypool"
)

const pumpReadSize = 16 * 1024

// pump owns one session's worker thread: it polls the master fd, reads
// bytes, feeds them through the DSR filter, updates scrollback, and emits
// output/exit events. Exactly one pump runs per live session.
type pump struct {
	sessionID  int
	handle     *ptypool.Handle
	scrollback *ptypool.Scrollback
	bus        *Bus
	stop       atomic.Bool
	done       chan struct{}
	log        zerolog.Logger
}

func newPump(sessionID int, h *ptypool.Handle, sb *ptypool.Scrollback, bus *Bus, log zerolog.Logger) *pump {
	return &pump{
		sessionID:  sessionID,
		handle:     h,
		scrollback: sb,
		bus:        bus,
		done:       make(chan struct{}),
		log:        log.With().Int("session_id", sessionID).Logger(),
	}
}

// Start spawns the pump's worker goroutine.
func (p *pump) Start() {
	go p.run()
}

// Stop requests the pump to exit; observed within 100ms by the poll loop.
func (p *pump) Stop() {
	p.stop.Store(true)
}

// Join blocks until the pump's goroutine has exited.
func (p *pump) Join() {
	<-p.done
}

func (p *pump) run() {
	defer close(p.done)

	fd, err := p.handle.MasterFd()
	if err != nil {
		p.log.Warn().Err(err).Msg("pump: could not get master fd")
		p.bus.PublishExit(p.sessionID, -1)
		return
	}

	filter := ptypool.NewDSRFilter(func(reply []byte) error {
		return ptypool.WriteDSRReply(fd, reply)
	})

	reader, err := p.handle.CloneReader()
	if err != nil {
		p.log.Warn().Err(err).Msg("pump: could not clone reader")
		p.bus.PublishExit(p.sessionID, -1)
		return
	}

	buf := make([]byte, pumpReadSize)

	for {
		if p.stop.Load() {
			return
		}

		ready, perr := pollReadable(int(fd), 100*time.Millisecond)
		if perr != nil {
			p.log.Warn().Err(perr).Msg("pump: poll error")
			p.bus.PublishExit(p.sessionID, -1)
			return
		}
		if !ready {
			continue
		}

		n, rerr := reader.Read(buf)
		if n > 0 {
			forward := filter.Feed(buf[:n])
			if len(forward) > 0 {
				p.scrollback.Push(forward)
				p.bus.PublishOutput(p.sessionID, forward)
			}
		}

		if rerr != nil {
			if p.stop.Load() {
				return
			}
			if rerr == io.EOF {
				p.bus.PublishExit(p.sessionID, -1)
				return
			}
			p.log.Warn().Err(rerr).Msg("pump: read error")
			p.bus.PublishExit(p.sessionID, -1)
			return
		}
		if n == 0 {
			if p.stop.Load() {
				return
			}
		}
	}
}

func pollReadable(fd int, timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return false, nil
		}
		return false, err
	}
	return n > 0, nil
}
