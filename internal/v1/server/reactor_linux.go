//go:build linux

package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/harborchat/harbor/internal/v1/logging"
	"github.com/harborchat/harbor/internal/v1/metrics"
)

const (
	maxEpollEvents = 128
	readChunk      = 64 * 1024
	writeChunk     = 4 * 1024

	kickDrainAttempts = 10
	kickDrainBackoff  = 10 * time.Millisecond
)

// Reactor owns the epoll instance, the listening socket, and every
// client fd. It is the only goroutine doing socket syscalls; handlers
// talk to sockets exclusively through connection write buffers and the
// write-interest callback.
type Reactor struct {
	srv *Server

	epollFd  int
	listenFd int
	wakeR    int
	wakeW    int

	timeout int // epoll_wait timeout, milliseconds

	mu            sync.Mutex
	writeArmed    map[int]bool
	pendingArms   []int
	pendingDrains []int

	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// NewReactor opens the listening socket and the epoll instance. The
// server's fd hooks are bound here: teardown closes through the
// reactor, and kicks get an immediate bounded drain.
func NewReactor(srv *Server, port int, epollTimeout time.Duration) (*Reactor, error) {
	listenFd, err := listen(port)
	if err != nil {
		return nil, err
	}

	epollFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(listenFd)
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}

	// Self-pipe so Stop can interrupt epoll_wait.
	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epollFd)
		unix.Close(listenFd)
		return nil, fmt.Errorf("reactor: pipe2: %w", err)
	}

	r := &Reactor{
		srv:        srv,
		epollFd:    epollFd,
		listenFd:   listenFd,
		wakeR:      pipeFds[0],
		wakeW:      pipeFds[1],
		timeout:    int(epollTimeout.Milliseconds()),
		writeArmed: make(map[int]bool),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	if r.timeout <= 0 {
		r.timeout = 1000
	}

	if err := r.register(listenFd, unix.EPOLLIN|unix.EPOLLET); err != nil {
		r.closeAll()
		return nil, err
	}
	if err := r.register(r.wakeR, unix.EPOLLIN); err != nil {
		r.closeAll()
		return nil, err
	}

	srv.closeFd = r.closeClient
	srv.flushKick = r.scheduleDrain
	return r, nil
}

func listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: SO_REUSEADDR: %w", err)
	}
	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: bind port %d: %w", port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("reactor: listen: %w", err)
	}
	return fd, nil
}

func (r *Reactor) register(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Run drives the event loop until Stop. It should be called from its
// own goroutine; all socket I/O happens here.
func (r *Reactor) Run() {
	defer close(r.done)
	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		select {
		case <-r.stopped:
			r.closeAll()
			return
		default:
		}

		r.applyPendingArms()
		r.applyPendingDrains()

		n, err := unix.EpollWait(r.epollFd, events, r.timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logging.Error(context.Background(), "epoll_wait failed", zap.Error(err))
			r.closeAll()
			return
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := events[i].Events

			switch fd {
			case r.listenFd:
				r.acceptAll()
			case r.wakeR:
				r.drainWakePipe()
			default:
				if ev&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
					r.teardown(fd)
					continue
				}
				if ev&unix.EPOLLIN != 0 {
					r.readReady(fd)
				}
				if ev&unix.EPOLLOUT != 0 {
					r.writeReady(fd)
				}
			}
		}
	}
}

// Stop wakes the loop and waits for it to close everything.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopped)
		var one [1]byte
		unix.Write(r.wakeW, one[:])
	})
	<-r.done
}

// acceptAll drains the edge-triggered listener.
func (r *Reactor) acceptAll() {
	for {
		fd, _, err := unix.Accept4(r.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			logging.Warn(context.Background(), "accept failed", zap.Error(err))
			return
		}

		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			logging.Warn(context.Background(), "TCP_NODELAY failed",
				zap.Int("fd", fd), zap.Error(err))
		}

		r.srv.Accept(fd, r.armWrite)
		if err := r.register(fd, unix.EPOLLIN|unix.EPOLLRDHUP); err != nil {
			logging.Error(context.Background(), "register client failed",
				zap.Int("fd", fd), zap.Error(err))
			r.srv.reg.RemoveConnection(fd)
			unix.Close(fd)
			continue
		}
		logging.Info(context.Background(), "connection accepted", zap.Int("fd", fd))
	}
}

// readReady pulls bytes into the connection's read buffer, extracts
// complete frames, and hands each to the worker pool.
func (r *Reactor) readReady(fd int) {
	conn, ok := r.srv.reg.GetConnection(fd)
	if !ok {
		return
	}
	chunk := make([]byte, readChunk)
	for {
		n, err := unix.Read(fd, chunk)
		if n > 0 {
			if appendErr := conn.AppendRead(chunk[:n]); appendErr != nil {
				logging.Warn(context.Background(), "read buffer overflow, closing",
					zap.Int("fd", fd), zap.Error(appendErr))
				r.teardown(fd)
				return
			}
		}
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			if err == unix.EINTR {
				continue
			}
			r.teardown(fd)
			return
		}
		if n == 0 {
			// Orderly shutdown from the peer.
			r.teardown(fd)
			return
		}
		if n < len(chunk) {
			break
		}
	}

	frames := conn.ExtractFrames()
	for _, frame := range frames {
		metrics.FramesReceived.Inc()
		f := frame
		r.srv.Submit(func() { r.srv.HandleRequest(fd, f) })
	}
}

// writeReady drains the connection's write buffer in bounded chunks.
// Write interest is dropped once the buffer empties.
func (r *Reactor) writeReady(fd int) {
	conn, ok := r.srv.reg.GetConnection(fd)
	if !ok {
		return
	}
	for {
		chunk := conn.PeekWrite(writeChunk)
		if len(chunk) == 0 {
			r.disarmWrite(fd)
			return
		}
		n, err := unix.Write(fd, chunk)
		if n > 0 {
			conn.DiscardWrite(n)
			metrics.BytesWritten.Add(float64(n))
		}
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			if err == unix.EINTR {
				continue
			}
			r.teardown(fd)
			return
		}
		if n < len(chunk) {
			return
		}
	}
}

// armWrite is the connection write-ready callback. It may run on any
// worker goroutine, so the epoll_ctl is deferred to the reactor via
// the wake pipe.
func (r *Reactor) armWrite(fd int) {
	r.mu.Lock()
	if r.writeArmed[fd] {
		r.mu.Unlock()
		return
	}
	r.writeArmed[fd] = true
	r.pendingArms = append(r.pendingArms, fd)
	r.mu.Unlock()

	var one [1]byte
	unix.Write(r.wakeW, one[:])
}

func (r *Reactor) applyPendingArms() {
	r.mu.Lock()
	arms := r.pendingArms
	r.pendingArms = nil
	r.mu.Unlock()

	for _, fd := range arms {
		ev := unix.EpollEvent{
			Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP,
			Fd:     int32(fd),
		}
		if err := unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
			// The fd may already be gone; teardown owns the cleanup.
			r.mu.Lock()
			delete(r.writeArmed, fd)
			r.mu.Unlock()
		}
	}
}

func (r *Reactor) disarmWrite(fd int) {
	r.mu.Lock()
	armed := r.writeArmed[fd]
	delete(r.writeArmed, fd)
	r.mu.Unlock()
	if !armed {
		return
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (r *Reactor) drainWakePipe() {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(r.wakeR, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// scheduleDrain queues a best-effort flush of fd's pending frames on
// the event loop. Handlers run on worker goroutines, so the socket
// write itself has to stay confined to the reactor; this only records
// the fd and wakes the loop.
func (r *Reactor) scheduleDrain(fd int) {
	r.mu.Lock()
	r.pendingDrains = append(r.pendingDrains, fd)
	r.mu.Unlock()

	var one [1]byte
	unix.Write(r.wakeW, one[:])
}

func (r *Reactor) applyPendingDrains() {
	r.mu.Lock()
	drains := r.pendingDrains
	r.pendingDrains = nil
	r.mu.Unlock()

	for _, fd := range drains {
		r.drainNow(fd)
	}
}

// drainNow pushes a doomed connection's pending frames out with a
// short bounded retry, so the final notice reaches the peer before the
// socket closes. Runs on the reactor goroutine only.
func (r *Reactor) drainNow(fd int) {
	conn, ok := r.srv.reg.GetConnection(fd)
	if !ok {
		return
	}
	for attempt := 0; attempt < kickDrainAttempts; attempt++ {
		chunk := conn.PeekWrite(writeChunk)
		if len(chunk) == 0 {
			return
		}
		n, err := unix.Write(fd, chunk)
		if n > 0 {
			conn.DiscardWrite(n)
			metrics.BytesWritten.Add(float64(n))
			continue
		}
		if err == unix.EAGAIN {
			time.Sleep(kickDrainBackoff)
			continue
		}
		return
	}
}

// teardown routes a broken socket through the server's shared cleanup.
func (r *Reactor) teardown(fd int) {
	r.srv.Submit(func() { r.srv.CleanupConnection(fd) })
}

// closeClient is the server's CloseFd hook: deregister and close.
func (r *Reactor) closeClient(fd int) {
	unix.EpollCtl(r.epollFd, unix.EPOLL_CTL_DEL, fd, nil)
	r.mu.Lock()
	delete(r.writeArmed, fd)
	r.mu.Unlock()
	unix.Close(fd)
}

func (r *Reactor) closeAll() {
	for _, fd := range r.srv.reg.ConnectionFds() {
		r.srv.CleanupConnection(fd)
	}
	unix.Close(r.wakeR)
	unix.Close(r.wakeW)
	unix.Close(r.listenFd)
	unix.Close(r.epollFd)
}
