package modbus

import (
	"errors"
	"fmt"
)

// pdu is the in-memory representation of a modbus protocol data unit,
// i.e. a request or response stripped of its transport-specific framing
// (MBAP header on TCP, unit id + CRC on RTU).
type pdu struct {
	unitID       uint8
	functionCode uint8
	payload      []byte
}

const (
	// bit access
	fcReadCoils          uint8 = 0x01
	fcReadDiscreteInputs uint8 = 0x02
	fcWriteSingleCoil    uint8 = 0x05
	fcWriteMultipleCoils uint8 = 0x0f

	// 16-bit register access
	fcReadHoldingRegisters   uint8 = 0x03
	fcReadInputRegisters     uint8 = 0x04
	fcWriteSingleRegister    uint8 = 0x06
	fcWriteMultipleRegisters uint8 = 0x10
	fcMaskWriteRegister      uint8 = 0x16

	// encapsulated interface transport (device identification)
	fcReadDeviceIdentification uint8 = 0x2b
	meiTypeReadDeviceID        uint8 = 0x0e
)

// ReadDeviceCode selects the category of objects to read via
// ReadDeviceIdentification (function code 0x2b, MEI type 0x0e).
type ReadDeviceCode uint8

const (
	// ReadDeviceBasic reads the mandatory basic object category (objects 0x00-0x02).
	ReadDeviceBasic ReadDeviceCode = 0x01
	// ReadDeviceRegular reads the optional regular object category (objects 0x03-0x7f).
	ReadDeviceRegular ReadDeviceCode = 0x02
	// ReadDeviceExtended reads the optional extended object category (objects 0x80-0xff).
	ReadDeviceExtended ReadDeviceCode = 0x03
	// ReadDeviceSpecific reads a single object, identified by object id.
	ReadDeviceSpecific ReadDeviceCode = 0x04
)

// DeviceConformityLevel describes which object categories a server makes
// available and whether individual object access (as opposed to streamed
// access only) is supported.
type DeviceConformityLevel uint8

const (
	ConformityBasicStream      DeviceConformityLevel = 0x01
	ConformityRegularStream    DeviceConformityLevel = 0x02
	ConformityExtendedStream   DeviceConformityLevel = 0x03
	ConformityBasicIndividual  DeviceConformityLevel = 0x81
	ConformityRegularIndividual DeviceConformityLevel = 0x82
	ConformityExtendedIndividual DeviceConformityLevel = 0x83
)

const (
	exIllegalFunction        uint8 = 0x01
	exIllegalDataAddress     uint8 = 0x02
	exIllegalDataValue       uint8 = 0x03
	exServerDeviceFailure    uint8 = 0x04
	exAcknowledge            uint8 = 0x05
	exServerDeviceBusy       uint8 = 0x06
	exMemoryParityError      uint8 = 0x08
	exGWPathUnavailable      uint8 = 0x0a
	exGWTargetFailedToRespond uint8 = 0x0b
)

var (
	ErrConfigurationError       error = errors.New("configuration error")
	ErrRequestTimedOut          error = errors.New("request timed out")
	ErrIllegalFunction          error = errors.New("illegal function")
	ErrIllegalDataAddress       error = errors.New("illegal data address")
	ErrIllegalDataValue         error = errors.New("illegal data value")
	ErrServerDeviceFailure      error = errors.New("server device failure")
	ErrAcknowledge              error = errors.New("request acknowledged")
	ErrServerDeviceBusy         error = errors.New("server device busy")
	ErrMemoryParityError        error = errors.New("memory parity error")
	ErrGWPathUnavailable        error = errors.New("gateway path unavailable")
	ErrGWTargetFailedToRespond  error = errors.New("gateway target device failed to respond")
	ErrBadCRC                   error = errors.New("bad crc")
	ErrShortFrame                error = errors.New("short frame")
	ErrProtocolError             error = errors.New("protocol error")
	ErrBadUnitID                 error = errors.New("bad unit id")
	ErrBadTransactionID           error = errors.New("bad transaction id")
	ErrUnknownProtocolID           error = errors.New("unknown protocol identifier")
	ErrUnexpectedParameters        error = errors.New("unexpected parameters")
	ErrTransportIsAlreadyOpen       error = errors.New("transport is already open")
	ErrTransportIsAlreadyClosed     error = errors.New("transport is already closed")
	ErrObjectTooLarge                error = errors.New("device identification object exceeds the maximum response payload")
	ErrUnknownObjectID                error = errors.New("unknown device identification object id")
)

// mapExceptionCodeToError turns a wire exception code, as received in a
// response, into the matching local error value.
func mapExceptionCodeToError(exceptionCode uint8) (err error) {
	switch exceptionCode {
	case exIllegalFunction:
		err = ErrIllegalFunction
	case exIllegalDataAddress:
		err = ErrIllegalDataAddress
	case exIllegalDataValue:
		err = ErrIllegalDataValue
	case exServerDeviceFailure:
		err = ErrServerDeviceFailure
	case exAcknowledge:
		err = ErrAcknowledge
	case exMemoryParityError:
		err = ErrMemoryParityError
	case exServerDeviceBusy:
		err = ErrServerDeviceBusy
	case exGWPathUnavailable:
		err = ErrGWPathUnavailable
	case exGWTargetFailedToRespond:
		err = ErrGWTargetFailedToRespond
	default:
		err = fmt.Errorf("unsupported exception code (%v)", exceptionCode)
	}

	return
}

// mapErrorToExceptionCode turns a local or handler-returned error into the
// wire exception code to send back to the client. Unrecognized errors map
// to server device failure.
func mapErrorToExceptionCode(err error) uint8 {
	switch err {
	case ErrIllegalFunction:
		return exIllegalFunction
	case ErrIllegalDataAddress:
		return exIllegalDataAddress
	case ErrIllegalDataValue:
		return exIllegalDataValue
	case ErrAcknowledge:
		return exAcknowledge
	case ErrServerDeviceBusy:
		return exServerDeviceBusy
	case ErrMemoryParityError:
		return exMemoryParityError
	case ErrGWPathUnavailable:
		return exGWPathUnavailable
	case ErrGWTargetFailedToRespond:
		return exGWTargetFailedToRespond
	default:
		return exServerDeviceFailure
	}
}
