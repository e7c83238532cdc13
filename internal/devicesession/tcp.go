package devicesession

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPDevice drives a LabJack unit addressed over Ethernet using a
// persistent, reconnecting connection, following the pooled-dialer
// shape used for SCPI-over-TCP instruments: one long-lived connection
// per device, dropped on transport error and redialed on the next call
// rather than dialed fresh per command. There is no backoff between
// redials.
type TCPDevice struct {
	addr string
	dial func(ctx context.Context) (net.Conn, error)

	mu      sync.Mutex
	conn    net.Conn
	running bool

	scansPerRead int32
	numChannels  int
}

// NewTCPDevice creates a device bound to addr (host:port). The
// connection is established lazily on first use and, after a transport
// failure, redialed on the next call without any backoff.
func NewTCPDevice(addr string, dialTimeout time.Duration) *TCPDevice {
	return &TCPDevice{
		addr: addr,
		dial: func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

func (d *TCPDevice) HandleInfo() string {
	return fmt.Sprintf("tcp:%s", d.addr)
}

func (d *TCPDevice) ensureConn(ctx context.Context) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("devicesession: dial %s: %w", d.addr, err)
	}
	d.conn = conn
	return conn, nil
}

// frame is the wire shape for a single register operation: a 1-byte
// opcode, a length-prefixed name, and an 8-byte float64 value. This
// mirrors the teacher corpus's length-prefixed binary.LittleEndian
// framing idiom rather than inventing a novel wire format.
const (
	opWriteName  byte = 1
	opNameToAddr byte = 2
	opStreamStart byte = 3
	opStreamRead  byte = 4
	opStreamStop  byte = 5
)

func (d *TCPDevice) WriteName(name string, value float64) error {
	conn, err := d.ensureConn(context.Background())
	if err != nil {
		return err
	}
	if err := writeFrame(conn, opWriteName, name, value); err != nil {
		d.dropConn()
		return fmt.Errorf("devicesession: write name %q: %w", name, err)
	}
	return readAck(conn)
}

func (d *TCPDevice) NameToAddress(name string) (int, int, error) {
	conn, err := d.ensureConn(context.Background())
	if err != nil {
		return 0, 0, err
	}
	if err := writeFrame(conn, opNameToAddr, name, 0); err != nil {
		d.dropConn()
		return 0, 0, fmt.Errorf("devicesession: name to address %q: %w", name, err)
	}
	r := bufio.NewReader(conn)
	var addr, dtype int32
	if err := binary.Read(r, binary.LittleEndian, &addr); err != nil {
		return 0, 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &dtype); err != nil {
		return 0, 0, err
	}
	return int(addr), int(dtype), nil
}

func (d *TCPDevice) StreamStart(scanRate float64, addresses []int, scansPerRead int32) (float64, error) {
	conn, err := d.ensureConn(context.Background())
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.scansPerRead = scansPerRead
	d.numChannels = len(addresses)
	d.running = true
	d.mu.Unlock()

	w := bufio.NewWriter(conn)
	if err := w.WriteByte(opStreamStart); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, scanRate); err != nil {
		return 0, err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(addresses))); err != nil {
		return 0, err
	}
	for _, a := range addresses {
		if err := binary.Write(w, binary.LittleEndian, int32(a)); err != nil {
			return 0, err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, scansPerRead); err != nil {
		return 0, err
	}
	if err := w.Flush(); err != nil {
		d.dropConn()
		return 0, fmt.Errorf("devicesession: stream start: %w", err)
	}

	var actual float64
	if err := binary.Read(bufio.NewReader(conn), binary.LittleEndian, &actual); err != nil {
		return 0, fmt.Errorf("devicesession: stream start ack: %w", err)
	}
	return actual, nil
}

func (d *TCPDevice) StreamRead(ctx context.Context) (Scan, error) {
	d.mu.Lock()
	running := d.running
	scansPerRead := d.scansPerRead
	numChannels := d.numChannels
	d.mu.Unlock()
	if !running {
		return Scan{}, fmt.Errorf("devicesession: stream read: not streaming")
	}

	conn, err := d.ensureConn(ctx)
	if err != nil {
		return Scan{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	if err := writeByteOp(conn, opStreamRead); err != nil {
		d.dropConn()
		return Scan{}, fmt.Errorf("devicesession: stream read request: %w", err)
	}

	count := int(scansPerRead) * numChannels
	values := make([]float64, count)
	r := bufio.NewReader(conn)
	for i := range values {
		if err := binary.Read(r, binary.LittleEndian, &values[i]); err != nil {
			d.dropConn()
			return Scan{}, fmt.Errorf("devicesession: stream read: %w", err)
		}
	}
	return Scan{Values: values}, nil
}

func (d *TCPDevice) StreamStop() error {
	d.mu.Lock()
	wasRunning := d.running
	d.running = false
	conn := d.conn
	d.mu.Unlock()
	if !wasRunning || conn == nil {
		return nil
	}
	if err := writeByteOp(conn, opStreamStop); err != nil {
		return fmt.Errorf("devicesession: stream stop: %w", err)
	}
	return nil
}

func (d *TCPDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

func (d *TCPDevice) dropConn() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		_ = d.conn.Close()
		d.conn = nil
	}
}

func writeFrame(conn net.Conn, op byte, name string, value float64) error {
	w := bufio.NewWriter(conn)
	if err := w.WriteByte(op); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(len(name))); err != nil {
		return err
	}
	if _, err := w.WriteString(name); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, value); err != nil {
		return err
	}
	return w.Flush()
}

func writeByteOp(conn net.Conn, op byte) error {
	_, err := conn.Write([]byte{op})
	return err
}

func readAck(conn net.Conn) error {
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	if err != nil {
		return err
	}
	if buf[0] != 0 {
		return fmt.Errorf("devicesession: device returned error code %d", buf[0])
	}
	return nil
}
