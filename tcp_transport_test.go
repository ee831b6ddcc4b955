package modbus

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestAssembleMBAPFrame(t *testing.T) {
	var tt *tcpTransport
	var frame []byte

	tt = &tcpTransport{}

	frame = tt.assembleMBAPFrame(0x9219, &pdu{
		unitID:       0x33,
		functionCode: 0x11,
		payload:      []byte{0x22, 0x33, 0x44, 0x55},
	})
	// expect 7 bytes of MBAP header + 1 bytes of function code + 4 bytes of payload
	if len(frame) != 12 {
		t.Errorf("expected 12 bytes, got %v", len(frame))
	}
	for i, b := range []byte{
		0x92, 0x19, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x06, // length (big endian)
		0x33, 0x11, // unit id and function code
		0x22, 0x33, // payload
		0x44, 0x55, // payload
	} {
		if frame[i] != b {
			t.Errorf("expected 0x%02x at position %v, got 0x%02x", b, i, frame[i])
		}
	}

	frame = tt.assembleMBAPFrame(0x921a, &pdu{
		unitID:       0x31,
		functionCode: 0x06,
		payload:      []byte{0x12, 0x34},
	})
	// expect 7 bytes of MBAP header + 1 bytes of function code + 2 bytes of payload
	if len(frame) != 10 {
		t.Errorf("expected 10 bytes, got %v", len(frame))
	}
	for i, b := range []byte{
		0x92, 0x1a, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x04, // length (big endian)
		0x31, 0x06, // unit id and function code
		0x12, 0x34, // payload
	} {
		if frame[i] != b {
			t.Errorf("expected 0x%02x at position %v, got 0x%02x", b, i, frame[i])
		}
	}

	return
}

func TestTCPTransportReadMBAPFrame(t *testing.T) {
	var tt *tcpTransport
	var p1, p2 net.Conn
	var txchan chan []byte
	var err error
	var res *pdu
	var txnID uint16

	txchan = make(chan []byte, 2)
	p1, p2 = net.Pipe()
	go feedTestPipe(t, txchan, p1)

	tt = newTCPTransport(p2, 10*time.Millisecond, nil)

	// read a valid frame
	txchan <- []byte{
		0x92, 0x18, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x04, // length (big endian)
		0x31, 0x06, // unit id and function code
		0x12, 0x34, // payload
	}
	res, txnID, err = tt.readMBAPFrame()
	if err != nil {
		t.Errorf("readMBAPFrame() should have succeeded, got %v", err)
	}
	if txnID != 0x9218 {
		t.Errorf("expected 0x9218 as transaction id, got 0x%04x", txnID)
	}
	if res.unitID != 0x31 {
		t.Errorf("expected 0x31 as unit id, got 0x%02x", res.unitID)
	}
	if res.functionCode != 0x06 {
		t.Errorf("expected 0x06 as function code, got 0x%02x", res.functionCode)
	}
	if len(res.payload) != 2 {
		t.Errorf("expected a length of 2, got %v", len(res.payload))
	}
	if res.payload[0] != 0x12 || res.payload[1] != 0x34 {
		t.Errorf("expected {0x12, 0x34} as payload, got {0x%02x, 0x%02x}",
			res.payload[0], res.payload[1])
	}

	// a frame with an unexpected protocol id is reported as ErrUnknownProtocolID
	txchan <- []byte{
		0x92, 0x19, // transaction identifier (big endian)
		0x00, 0x01, // protocol identifier
		0x00, 0x04, // length (big endian)
		0x31, 0x06, // unit id and function code
		0x12, 0x34, // payload
	}
	_, _, err = tt.readMBAPFrame()
	if err != ErrUnknownProtocolID {
		t.Errorf("readMBAPFrame() should have returned ErrUnknownProtocolID, got %v", err)
	}

	// an illegal length is reported as ErrProtocolError
	txchan <- []byte{
		0x92, 0x18, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x01, // length (big endian)
		0x31, // unit id
	}
	_, _, err = tt.readMBAPFrame()
	if err != ErrProtocolError {
		t.Errorf("readMBAPFrame() should have returned ErrProtocolError, got %v", err)
	}

	// read a valid frame again
	txchan <- []byte{
		0x92, 0x18, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x0a, // length (big endian)
		0x31, 0x32, // unit id and function code
		0x44, 0x55, // payload
		0x66, 0x77, // payload
		0x88, 0x99, // payload
		0xaa, 0xbb, // payload
	}
	res, txnID, err = tt.readMBAPFrame()
	if err != nil {
		t.Errorf("readMBAPFrame() should have succeeded, got %v", err)
	}
	if txnID != 0x9218 {
		t.Errorf("expected 0x9218 as transaction id, got 0x%04x", txnID)
	}
	if res.unitID != 0x31 {
		t.Errorf("expected 0x31 as unit id, got 0x%02x", res.unitID)
	}
	if res.functionCode != 0x32 {
		t.Errorf("expected 0x32 as response code, got 0x%02x", res.functionCode)
	}
	if len(res.payload) != 8 {
		t.Errorf("expected a length of 8, got %v", len(res.payload))
	}
	for i, b := range []byte{
		0x44, 0x55,
		0x66, 0x77,
		0x88, 0x99,
		0xaa, 0xbb,
	} {
		if res.payload[i] != b {
			t.Errorf("expected 0x%02x at position %v, got 0x%02x",
				b, i, res.payload[i])
		}
	}

	// a huge frame is reported as ErrProtocolError
	txchan <- []byte{
		0x92, 0x18, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x10, 0x0a, // length (big endian)
		0x31, // unit id
	}
	_, _, err = tt.readMBAPFrame()
	if err != ErrProtocolError {
		t.Errorf("readMBAPFrame() should have returned ErrProtocolError, got %v", err)
	}

	p1.Close()
	p2.Close()

	return
}

func TestTCPTransportReadRequest(t *testing.T) {
	var tt *tcpTransport
	var p1, p2 net.Conn
	var txchan chan []byte
	var err error
	var req *pdu

	txchan = make(chan []byte, 2)
	p1, p2 = net.Pipe()
	go feedTestPipe(t, txchan, p1)

	tt = newTCPTransport(p2, 10*time.Millisecond, nil)

	// push two frames in a row:
	//  - the first with an unknown protocol id
	txchan <- []byte{
		0x92, 0x18, // transaction identifier (big endian)
		0x00, 0x01, // protocol identifier
		0x00, 0x04, // length (big endian)
		0x31, 0x06, // unit id and function code
		0x12, 0x34, // payload
	}
	//  - the second with a valid request
	txchan <- []byte{
		0x92, 0x19, // transaction identifier (big endian)
		0x00, 0x00, // protocol identifier
		0x00, 0x0a, // length (big endian)
		0xfa, 0x04, // unit id and function code
		0x44, 0x55, // payload
		0x66, 0x77, // payload
		0x88, 0x99, // payload
		0xaa, 0xbb, // payload
	}

	// ReadRequest reports the unknown protocol id as an error; the next
	// call returns the following well-formed frame
	_, err = tt.ReadRequest()
	if err != ErrUnknownProtocolID {
		t.Errorf("ReadRequest() should have returned ErrUnknownProtocolID, got %v", err)
	}
	req, err = tt.ReadRequest()
	if err != nil {
		t.Errorf("ReadRequest() should have succeeded, got %v", err)
	}
	if req == nil {
		t.Fatalf("ReadRequest() should have returned a non-nil request")
	}
	if req.unitID != 0xfa {
		t.Errorf("expected 0xfa as unit id, got 0x%02x", req.unitID)
	}
	if req.functionCode != 0x04 {
		t.Errorf("expected 0x04 as response code, got 0x%02x", req.functionCode)
	}
	if len(req.payload) != 8 {
		t.Errorf("expected a length of 8, got %v", len(req.payload))
	}
	for i, b := range []byte{
		0x44, 0x55,
		0x66, 0x77,
		0x88, 0x99,
		0xaa, 0xbb,
	} {
		if req.payload[i] != b {
			t.Errorf("expected 0x%02x at position %v, got 0x%02x",
				b, i, req.payload[i])
		}
	}
	if tt.lastTxnID != 0x9219 {
		t.Errorf("tt.lastTxnID should have been 0x9219, saw 0x%04x", tt.lastTxnID)
	}

	return
}

func TestTCPTransportWriteResponse(t *testing.T) {
	var tt *tcpTransport
	var p1, p2 net.Conn
	var done chan bool
	var err error

	done = make(chan bool, 0)
	p1, p2 = net.Pipe()
	go func(t *testing.T, pipe net.Conn, done chan bool) {
		var err error
		var rxbuf []byte
		var expected []byte

		expected = []byte{
			0xc0, 0x1f, // transaction identifier (big endian)
			0x00, 0x00, // protocol identifier
			0x00, 0x0b, // length (big endian)
			0x17, 0x06, // unit id and function code
			0x44, 0x55, // payload
			0x66, 0x77, // payload
			0x88, 0x99, // payload
			0xaa, 0xbb, // payload
			0xf4, // payload
		}

		rxbuf = make([]byte, len(expected))
		_, err = io.ReadFull(pipe, rxbuf)
		if err != nil {
			t.Errorf("failed to read frame: %v", err)
		}

		for i, b := range expected {
			if rxbuf[i] != b {
				t.Errorf("expected 0x%02x at position %v, got 0x%02x",
					b, i, rxbuf[i])
			}
		}

		done <- true
		return
	}(t, p2, done)

	tt = newTCPTransport(p1, 10*time.Millisecond, nil)
	tt.lastTxnID = 0xc01f

	err = tt.WriteResponse(&pdu{
		unitID:       0x17,
		functionCode: 0x06,
		payload: []byte{
			0x44, 0x55, // payload
			0x66, 0x77, // payload
			0x88, 0x99, // payload
			0xaa, 0xbb, // payload
			0xf4, // payload
		},
	})
	if err != nil {
		t.Errorf("WriteResponse() should have succeeded, got %v", err)
	}

	// wait for the checker goroutine to return
	<-done

	return
}

// TestTCPTransportConcurrentExecuteRequest drives two ExecuteRequest calls
// at once over a single tcpTransport and checks that each gets back the
// response matching its own transaction id, proving the transaction table
// in readLoop demultiplexes correctly rather than just serializing the two
// callers by accident.
func TestTCPTransportConcurrentExecuteRequest(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	tt := newTCPTransport(clientConn, time.Second, nil)

	// a tiny fake server: for every incoming request, reply with a payload
	// that echoes back the requested unit id, after a delay for the first
	// unit id so the two requests are genuinely in flight at the same time.
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		st := newTCPTransport(serverConn, time.Second, nil)
		for i := 0; i < 2; i++ {
			req, err := st.ReadRequest()
			if err != nil {
				t.Errorf("server ReadRequest() failed: %v", err)
				return
			}
			if req.unitID == 1 {
				time.Sleep(20 * time.Millisecond)
			}
			if err := st.WriteResponse(&pdu{
				unitID:       req.unitID,
				functionCode: req.functionCode,
				payload:      []byte{req.unitID},
			}); err != nil {
				t.Errorf("server WriteResponse() failed: %v", err)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	results := make([]*pdu, 2)
	errs := make([]error, 2)

	for i, unitID := range []uint8{1, 2} {
		wg.Add(1)
		go func(i int, unitID uint8) {
			defer wg.Done()
			results[i], errs[i] = tt.ExecuteRequest(&pdu{
				unitID:       unitID,
				functionCode: 0x03,
				payload:      []byte{0x00, 0x00, 0x00, 0x01},
			})
		}(i, unitID)
	}

	wg.Wait()
	<-serverDone

	for i, unitID := range []uint8{1, 2} {
		if errs[i] != nil {
			t.Fatalf("ExecuteRequest() for unit %d failed: %v", unitID, errs[i])
		}
		if results[i].unitID != unitID {
			t.Errorf("expected the response for unit %d to carry unit id %d, got %d",
				unitID, unitID, results[i].unitID)
		}
		if len(results[i].payload) != 1 || results[i].payload[0] != unitID {
			t.Errorf("expected the response payload for unit %d to echo back %d, got %v",
				unitID, unitID, results[i].payload)
		}
	}
}
