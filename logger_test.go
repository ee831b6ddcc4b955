package modbus

import (
	"bytes"
	"log"
	"net"
	"strings"
	"testing"
	"time"
)

func TestClientCustomLogger(t *testing.T) {
	var buf bytes.Buffer
	var logger *log.Logger

	logger = log.New(&buf, "external-prefix: ", 0)

	_, _ = NewClient(&Configuration{
		Logger: logger,
		URL:    "sometype://sometarget",
	})

	if buf.String() != "external-prefix: modbus-client(sometarget) [error]: unsupported client type 'sometype'\n" {
		t.Errorf("unexpected logger output '%s'", buf.String())
	}

	return
}

func TestServerCustomLogger(t *testing.T) {
	var buf bytes.Buffer
	var logger *log.Logger
	var server *ModbusServer
	var l net.Listener
	var conn net.Conn
	var err error

	logger = log.New(&buf, "external-prefix: ", 0)

	server, err = New(&DummyHandler{},
		Logger(newLogger("modbus-server", logger)),
		WithAddressFilter(func(addr net.Addr) bool { return false }),
	)
	if err != nil {
		t.Errorf("failed to create server: %v", err)
	}

	l, err = net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Errorf("failed to listen: %v", err)
	}

	err = server.Start(l)
	if err != nil {
		t.Errorf("failed to start server: %v", err)
	}

	conn, err = net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Errorf("failed to dial: %v", err)
	}
	conn.Close()

	time.Sleep(10 * time.Millisecond)
	server.Stop()

	if !strings.Contains(buf.String(), "external-prefix: modbus-server [warn]: rejecting connection") {
		t.Errorf("unexpected logger output '%s'", buf.String())
	}

	return
}
