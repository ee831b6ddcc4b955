package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

const (
	maxTCPFrameLength int = 260
	mbapHeaderLength  int = 7
)

// tcpTransport implements the transport interface over MBAP framing, used
// both by the client (ExecuteRequest, over a single outgoing socket) and
// by the server (ReadRequest/WriteResponse, over a single accepted
// connection).
//
// On the client side, ExecuteRequest is safe to call concurrently from
// multiple goroutines sharing the same tcpTransport: each call allocates
// its own transaction id and blocks on a private response channel, while
// a single reader goroutine demultiplexes incoming frames by transaction
// id. This is what lets several requests be in flight over one TCP
// connection at once; Client's beginRequest releases its lock before
// the wire round trip for plain TCP and TCP+TLS transports specifically
// so that concurrency is reachable from ordinary Client callers, not
// just from code that reaches into a shared transport directly.
type tcpTransport struct {
	logger    *logger
	socket    net.Conn
	timeout   time.Duration
	lastTxnID uint16

	mu         sync.Mutex
	readerOnce sync.Once
	pending    map[uint16]chan *pdu
	readerDone chan struct{}
	readerErr  error
}

// Returns a new TCP transport.
func newTCPTransport(socket net.Conn, timeout time.Duration, customLogger *log.Logger) *tcpTransport {
	return &tcpTransport{
		socket:     socket,
		timeout:    timeout,
		logger:     newLogger(fmt.Sprintf("tcp-transport(%s)", socket.RemoteAddr()), customLogger),
		pending:    make(map[uint16]chan *pdu),
		readerDone: make(chan struct{}),
	}
}

// Closes the underlying tcp socket.
func (tt *tcpTransport) Close() (err error) {
	return tt.socket.Close()
}

// Runs a request across the socket and returns a response. Safe for
// concurrent use: see the tcpTransport doc comment.
func (tt *tcpTransport) ExecuteRequest(req *pdu) (*pdu, error) {
	respCh := make(chan *pdu, 1)

	tt.mu.Lock()
	tt.lastTxnID++
	txnID := tt.lastTxnID
	tt.pending[txnID] = respCh
	tt.mu.Unlock()

	tt.readerOnce.Do(func() { go tt.readLoop() })

	if err := tt.socket.SetWriteDeadline(time.Now().Add(tt.timeout)); err != nil {
		tt.dropPending(txnID)
		return nil, err
	}

	if _, err := tt.socket.Write(tt.assembleMBAPFrame(txnID, req)); err != nil {
		tt.dropPending(txnID)
		return nil, err
	}

	select {
	case res := <-respCh:
		return res, nil
	case <-time.After(tt.timeout):
		tt.dropPending(txnID)
		return nil, ErrRequestTimedOut
	case <-tt.readerDone:
		tt.dropPending(txnID)
		if tt.readerErr != nil {
			return nil, tt.readerErr
		}
		return nil, ErrProtocolError
	}
}

func (tt *tcpTransport) dropPending(txnID uint16) {
	tt.mu.Lock()
	delete(tt.pending, txnID)
	tt.mu.Unlock()
}

// readLoop runs for the lifetime of a client-mode tcpTransport, reading
// MBAP frames off the socket and routing each to the channel registered
// for its transaction id by ExecuteRequest.
func (tt *tcpTransport) readLoop() {
	defer close(tt.readerDone)

	for {
		res, txnID, err := tt.readMBAPFrame()
		if err == ErrUnknownProtocolID {
			continue
		}
		if err != nil {
			tt.readerErr = err
			return
		}

		tt.mu.Lock()
		ch, ok := tt.pending[txnID]
		delete(tt.pending, txnID)
		tt.mu.Unlock()

		if !ok {
			tt.logger.Warningf("received unexpected transaction id 0x%04x", txnID)
			continue
		}

		ch <- res
	}
}

// Reads a request from the socket (server mode).
func (tt *tcpTransport) ReadRequest() (*pdu, error) {
	if err := tt.socket.SetDeadline(time.Now().Add(tt.timeout)); err != nil {
		return nil, err
	}

	req, txnID, err := tt.readMBAPFrame()
	if err != nil {
		return nil, err
	}

	tt.lastTxnID = txnID

	return req, err
}

// Writes a response to the socket (server mode).
func (tt *tcpTransport) WriteResponse(res *pdu) (err error) {
	_, err = tt.socket.Write(tt.assembleMBAPFrame(tt.lastTxnID, res))
	return err
}

// Reads an entire frame (MBAP header + modbus PDU) from the socket.
func (tt *tcpTransport) readMBAPFrame() (p *pdu, txnID uint16, err error) {
	rxbuf := make([]byte, mbapHeaderLength)
	if _, err = io.ReadFull(tt.socket, rxbuf); err != nil {
		return
	}

	txnID = binary.BigEndian.Uint16(rxbuf[0:2])
	protocolID := binary.BigEndian.Uint16(rxbuf[2:4])
	unitID := rxbuf[6]

	bytesNeeded := int(binary.BigEndian.Uint16(rxbuf[4:6]))
	bytesNeeded--

	if bytesNeeded+mbapHeaderLength > maxTCPFrameLength {
		err = ErrProtocolError
		return
	}

	if bytesNeeded <= 0 {
		err = ErrProtocolError
		return
	}

	rxbuf = make([]byte, bytesNeeded)
	if _, err = io.ReadFull(tt.socket, rxbuf); err != nil {
		return
	}

	if protocolID != 0x0000 {
		err = ErrUnknownProtocolID
		tt.logger.Warningf("received unexpected protocol id 0x%04x", protocolID)
		return
	}

	p = &pdu{
		unitID:       unitID,
		functionCode: rxbuf[0],
		payload:      rxbuf[1:],
	}

	return
}

// Turns a PDU into an MBAP frame (MBAP header + PDU) and returns it as bytes.
func (tt *tcpTransport) assembleMBAPFrame(txnID uint16, p *pdu) []byte {
	frame := make([]byte, 0, 8+len(p.payload))
	frame = append(frame, uint16ToBytes(BigEndian, txnID)...)
	frame = append(frame, 0x00, 0x00)
	frame = append(frame, uint16ToBytes(BigEndian, uint16(2+len(p.payload)))...)
	frame = append(frame, p.unitID)
	frame = append(frame, p.functionCode)
	frame = append(frame, p.payload...)

	return frame
}
