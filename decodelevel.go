package modbus

import "fmt"

// AppDecodeLevel controls how much of the decoded application PDU
// (function code, addresses, object counts, data values) gets logged per
// request/response.
type AppDecodeLevel uint8

const (
	AppDecodeNothing AppDecodeLevel = iota
	AppDecodeFunctionCodes
	AppDecodeDataHeaders
	AppDecodeDataValues
)

// FrameDecodeLevel controls how much of the transport frame (MBAP header
// or RTU unit id/CRC) gets logged.
type FrameDecodeLevel uint8

const (
	FrameDecodeNothing FrameDecodeLevel = iota
	FrameDecodeHeader
	FrameDecodePayload
)

// PhysicalDecodeLevel controls how much of the raw bytes crossing the
// physical link (socket or serial port) gets logged.
type PhysicalDecodeLevel uint8

const (
	PhysicalDecodeNothing PhysicalDecodeLevel = iota
	PhysicalDecodeLength
	PhysicalDecodeData
)

// DecodeLevel selects how verbosely a client or server traces traffic
// across three independent axes. It's purely an observability knob: none
// of its settings change wire behavior. The client and server read the
// current level once per request/response PDU, so changing it takes
// effect starting with the next PDU processed, not retroactively. Only
// the Application axis affects output (see tracePDU): traceFrame is not
// called by any transport, so the Frame and Physical settings log nothing.
type DecodeLevel struct {
	Application AppDecodeLevel
	Frame       FrameDecodeLevel
	Physical    PhysicalDecodeLevel
}

// traceFrame logs a transport-level frame according to lvl.Frame/Physical.
// header describes the framing-specific header fields (MBAP fields or the
// RTU unit id/CRC); raw is the complete wire frame.
func traceFrame(logger LeveledLogger, lvl DecodeLevel, direction string, header string, raw []byte) {
	if lvl.Frame >= FrameDecodeHeader {
		logger.Infof("%s frame header: %s", direction, header)
	}

	if lvl.Frame >= FrameDecodePayload {
		logger.Infof("%s frame payload: % x", direction, raw)
	}

	if lvl.Physical == PhysicalDecodeLength {
		logger.Infof("%s %d bytes on the wire", direction, len(raw))
	} else if lvl.Physical == PhysicalDecodeData {
		logger.Infof("%s wire bytes: % x", direction, raw)
	}
}

// tracePDU logs a decoded application PDU according to lvl.Application.
func tracePDU(logger LeveledLogger, lvl DecodeLevel, direction string, p *pdu) {
	if lvl.Application == AppDecodeNothing {
		return
	}

	if lvl.Application == AppDecodeFunctionCodes {
		logger.Infof("%s unit %d function 0x%02x", direction, p.unitID, p.functionCode)
		return
	}

	msg := fmt.Sprintf("%s unit %d function 0x%02x, %d payload byte(s)",
		direction, p.unitID, p.functionCode, len(p.payload))

	if lvl.Application == AppDecodeDataValues {
		msg += fmt.Sprintf(": % x", p.payload)
	}

	logger.Infof("%s", msg)
}
