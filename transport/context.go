// Package transport is a minimal stand-in for an external collective
// transport library, treated as an out-of-scope collaborator. It
// provides just enough of a wire protocol — fullmesh connect over TCP
// via a rendezvous store, framed point-to-point messaging, and
// centralized (root-based) collective algorithms — to make the group
// core's worker-pool and device-staging machinery exercisable end to
// end. It is explicitly a reference implementation: production wire
// algorithms such as ring/tree reduction and RDMA transports remain
// out of scope.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/internal/xlog"
	"github.com/tao-jia/collgroup/rendezvous"
)

var log = xlog.New("component", "transport")

// Device names one transport endpoint a process group connects
// contexts over. In a production transport this would select a NIC
// or fabric; here it just carries the local listen host.
type Device struct {
	// ListenHost is the interface this rank listens on for peer
	// connections, e.g. "127.0.0.1" or "0.0.0.0". Port is chosen by
	// the OS and published through the rendezvous store.
	ListenHost string
}

type frame struct {
	tag     uint32
	payload []byte
}

type waiter struct {
	tag      uint32
	srcRanks map[int]bool // nil means "any source"
	ch       chan frame
}

// Context is one connected collective communication context bound to
// (rank, size): established via fullmesh rendezvous against a Store,
// immutable after construction.
type Context struct {
	Rank    int
	Size    int
	Timeout time.Duration

	listener net.Listener
	conns    map[int]*peerConn

	mu       sync.Mutex
	backlog  map[uint32][]frame
	waiters  map[uint32][]*waiter

	closeOnce sync.Once
	closed    chan struct{}
}

type peerConn struct {
	rank int
	conn net.Conn
	wmu  sync.Mutex
	rd   *bufio.Reader
}

// Connect performs fullmesh rendezvous: this rank publishes its
// listen address under a store key, waits for every peer's address to
// appear, then dials ranks greater than itself and accepts
// connections from ranks less than itself, yielding exactly one
// connection per peer. It fails fast with a Fatal error if size <= 0.
func Connect(ctx context.Context, store rendezvous.Store, device Device, rank, size int, timeout time.Duration) (*Context, error) {
	if size <= 0 {
		return nil, xerrors.Fatalf("fullmesh", "group size must be positive, got %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, xerrors.Fatalf("fullmesh", "rank %d out of range [0,%d)", rank, size)
	}

	ln, err := net.Listen("tcp", device.ListenHost+":0")
	if err != nil {
		return nil, xerrors.Fatal("fullmesh", err)
	}

	c := &Context{
		Rank:    rank,
		Size:    size,
		Timeout: timeout,
		listener: ln,
		conns:    make(map[int]*peerConn),
		backlog:  make(map[uint32][]frame),
		waiters:  make(map[uint32][]*waiter),
		closed:   make(chan struct{}),
	}

	addrKey := rendezvousKey(rank)
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	if err := store.Set(ctx, addrKey, []byte(net.JoinHostPort(device.ListenHost, port))); err != nil {
		ln.Close()
		return nil, xerrors.Fatal("fullmesh", err)
	}

	keys := make([]string, size)
	for i := range keys {
		keys[i] = rendezvousKey(i)
	}
	if err := store.Wait(ctx, keys, timeout); err != nil {
		ln.Close()
		return nil, xerrors.Fatal("fullmesh", err)
	}

	addrs := make([]string, size)
	for i := 0; i < size; i++ {
		v, err := store.Get(ctx, keys[i])
		if err != nil {
			ln.Close()
			return nil, xerrors.Fatal("fullmesh", err)
		}
		addrs[i] = string(v)
	}

	// Accept connections from lower ranks while dialing higher ranks,
	// so the O(size^2) handshake completes without a strict ordering
	// dependency between any two peers.
	acceptCount := rank
	g, gctx := errgroup.WithContext(ctx)
	var accepted sync.WaitGroup
	accepted.Add(acceptCount)
	if acceptCount > 0 {
		g.Go(func() error {
			for i := 0; i < acceptCount; i++ {
				conn, err := ln.Accept()
				if err != nil {
					return err
				}
				peerRank, err := readHello(conn)
				if err != nil {
					conn.Close()
					return err
				}
				c.addConn(peerRank, conn)
				accepted.Done()
			}
			return nil
		})
	}
	for peer := rank + 1; peer < size; peer++ {
		peer := peer
		g.Go(func() error {
			return c.dial(gctx, peer, addrs[peer])
		})
	}
	if err := g.Wait(); err != nil {
		ln.Close()
		return nil, xerrors.Fatal("fullmesh", err)
	}
	accepted.Wait()

	log.Info("fullmesh connected", "rank", rank, "size", size)
	return c, nil
}

func rendezvousKey(rank int) string {
	return "collgroup/addr/" + strconv.Itoa(rank)
}

func (c *Context) dial(ctx context.Context, peer int, addr string) error {
	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if err := writeHello(conn, c.Rank); err != nil {
		conn.Close()
		return err
	}
	c.addConn(peer, conn)
	return nil
}

func writeHello(conn net.Conn, rank int) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(rank))
	_, err := conn.Write(buf[:])
	return err
}

func readHello(conn net.Conn) (int, error) {
	var buf [4]byte
	if _, err := fullRead(conn, buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(buf[:])), nil
}

func (c *Context) addConn(peer int, conn net.Conn) {
	pc := &peerConn{rank: peer, conn: conn, rd: bufio.NewReader(conn)}
	c.mu.Lock()
	c.conns[peer] = pc
	c.mu.Unlock()
	go c.readLoop(pc)
}

// readLoop demultiplexes framed messages from one peer connection,
// handing each to a matching waiter or buffering it until one
// registers, so Recv calls issued before or after the bytes arrive
// both complete correctly.
func (c *Context) readLoop(pc *peerConn) {
	for {
		var hdr [8]byte
		if _, err := fullRead(pc.rd, hdr[:]); err != nil {
			return
		}
		tag := binary.BigEndian.Uint32(hdr[0:4])
		n := binary.BigEndian.Uint32(hdr[4:8])
		payload := make([]byte, n)
		if _, err := fullRead(pc.rd, payload); err != nil {
			return
		}
		c.dispatch(pc.rank, frame{tag: tag, payload: payload})
	}
}

func fullRead(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Context) dispatch(srcRank int, f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters[f.tag] {
		if w.srcRanks == nil || w.srcRanks[srcRank] {
			c.waiters[f.tag] = append(c.waiters[f.tag][:i], c.waiters[f.tag][i+1:]...)
			select {
			case w.ch <- taggedFrame(f, srcRank):
			default:
			}
			return
		}
	}
	c.backlog[f.tag] = append(c.backlog[f.tag], taggedFrame(f, srcRank))
}

// taggedFrame prefixes the payload with the 4-byte big-endian source
// rank so the sender travels with the frame through the backlog and
// waiter channels; untagFrame strips it off again.
func taggedFrame(f frame, srcRank int) frame {
	f.payload = append([]byte{byte(srcRank >> 24), byte(srcRank >> 16), byte(srcRank >> 8), byte(srcRank)}, f.payload...)
	return f
}

func untagFrame(f frame) (srcRank int, payload []byte) {
	srcRank = int(binary.BigEndian.Uint32(f.payload[:4]))
	return srcRank, f.payload[4:]
}

// writeFrame sends a length-prefixed, tagged message to peer dstRank.
func (c *Context) writeFrame(dstRank int, tag uint32, payload []byte) error {
	c.mu.Lock()
	pc, ok := c.conns[dstRank]
	c.mu.Unlock()
	if !ok {
		return xerrors.Transportf("send", "no connection to rank %d", dstRank)
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], tag)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	pc.wmu.Lock()
	defer pc.wmu.Unlock()
	if _, err := pc.conn.Write(hdr[:]); err != nil {
		return xerrors.Transport("send", err)
	}
	if len(payload) > 0 {
		if _, err := pc.conn.Write(payload); err != nil {
			return xerrors.Transport("send", err)
		}
	}
	return nil
}

// readFrame blocks until a frame with the given tag arrives from one
// of srcRanks (nil meaning any rank), or until timeout elapses.
func (c *Context) readFrame(srcRanks []int, tag uint32, timeout time.Duration) (int, []byte, error) {
	var allowed map[int]bool
	if srcRanks != nil {
		allowed = make(map[int]bool, len(srcRanks))
		for _, r := range srcRanks {
			allowed[r] = true
		}
	}

	c.mu.Lock()
	for i, f := range c.backlog[tag] {
		srcRank, payload := untagFrame(f)
		if allowed == nil || allowed[srcRank] {
			c.backlog[tag] = append(c.backlog[tag][:i], c.backlog[tag][i+1:]...)
			c.mu.Unlock()
			return srcRank, payload, nil
		}
	}
	w := &waiter{tag: tag, srcRanks: allowed, ch: make(chan frame, 1)}
	c.waiters[tag] = append(c.waiters[tag], w)
	c.mu.Unlock()

	select {
	case f := <-w.ch:
		srcRank, payload := untagFrame(f)
		return srcRank, payload, nil
	case <-time.After(timeout):
		return 0, nil, xerrors.Transportf("recv", "timed out waiting for tag %d", tag)
	case <-c.closed:
		return 0, nil, xerrors.Transportf("recv", "context closed")
	}
}

// Close tears down every peer connection and the listener. In-flight
// Recv calls unblock with a TransportError.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.listener.Close()
		c.mu.Lock()
		for _, pc := range c.conns {
			pc.conn.Close()
		}
		c.mu.Unlock()
	})
	return nil
}

func (c *Context) String() string {
	return fmt.Sprintf("transport.Context(rank=%d,size=%d)", c.Rank, c.Size)
}
