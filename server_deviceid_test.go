package modbus

import (
	"net"
	"testing"
)

func TestTCPServerMaskWriteRegister(t *testing.T) {
	th := &tcpTestHandler{}
	th.holding[3] = 0x0012

	server, err := New(th)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	if err := server.Start(l); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client, err := NewClient(&Configuration{URL: "tcp://" + l.Addr().String()})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	client.SetUnitID(9)

	if err := client.Open(); err != nil {
		t.Fatalf("failed to open client: %v", err)
	}
	defer client.Close()

	if err := client.WriteMaskRegister(3, 0x00f2, 0x0025); err != nil {
		t.Fatalf("mask write register failed: %v", err)
	}

	if th.holding[3] != 0x0017 {
		t.Errorf("expected register 3 to hold 0x0017, got 0x%04x", th.holding[3])
	}
}

type deviceIDTestHandler struct {
	DummyHandler
}

func TestTCPServerReadDeviceIdentification(t *testing.T) {
	identity := DeviceIdentity{
		ConformityLevel: ConformityBasicStream,
		Objects: []DeviceObject{
			{ID: 0x00, Category: ReadDeviceBasic, Value: "Example Vendor"},
			{ID: 0x01, Category: ReadDeviceBasic, Value: "Little Dictionary"},
			{ID: 0x02, Category: ReadDeviceBasic, Value: "0.1.0"},
		},
	}

	server, err := New(&deviceIDTestHandler{}, WithDeviceIdentity(identity))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	if err := server.Start(l); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client, err := NewClient(&Configuration{URL: "tcp://" + l.Addr().String()})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if err := client.Open(); err != nil {
		t.Fatalf("failed to open client: %v", err)
	}
	defer client.Close()

	objects, conformity, err := client.ReadDeviceIdentification(ReadDeviceBasic, 0x00)
	if err != nil {
		t.Fatalf("read device identification failed: %v", err)
	}

	if conformity != ConformityBasicStream {
		t.Errorf("expected conformity level %v, got %v", ConformityBasicStream, conformity)
	}

	if len(objects) != 3 || objects[0].Value != "Example Vendor" ||
		objects[1].Value != "Little Dictionary" || objects[2].Value != "0.1.0" {
		t.Errorf("unexpected objects: %+v", objects)
	}
}

func TestTCPServerReadOnlyHookDemotesWrites(t *testing.T) {
	th := &tcpTestHandler{}

	server, err := New(th, WithReadOnlyHook(func(clientRole string) bool {
		return true
	}))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	if err := server.Start(l); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer server.Stop()

	client, err := NewClient(&Configuration{URL: "tcp://" + l.Addr().String()})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	client.SetUnitID(9)

	if err := client.Open(); err != nil {
		t.Fatalf("failed to open client: %v", err)
	}
	defer client.Close()

	err = client.WriteCoil(0, true)
	if err != ErrIllegalFunction {
		t.Errorf("expected ErrIllegalFunction for a write under a read-only hook, got %v", err)
	}
}
