package modbus

import "sort"

// maxPDULength is the largest modbus PDU the protocol allows (function
// code + up to 252 bytes of payload).
const maxPDULength = 253

// deviceObjectBudget is how many bytes of encoded device identification
// objects (id + length + value, repeated) can fit in a single response,
// once the fixed 6-byte MEI/conformity/paging header is accounted for.
const deviceObjectBudget = maxPDULength - 6

// DeviceObject is a single Read Device Identification object: a short
// string property (vendor name, product code, firmware revision, ...)
// identified by a numeric id within one of the three standard categories.
type DeviceObject struct {
	ID       uint8
	Category ReadDeviceCode
	Value    string
}

// DeviceIdentity is the full set of device identification objects a
// server exposes, along with the conformity level it reports.
type DeviceIdentity struct {
	ConformityLevel DeviceConformityLevel
	Objects         []DeviceObject
}

// deviceIDCategory holds one category's objects, sorted by id, ready to be
// streamed out starting from any resume point.
type deviceIDCategory struct {
	objects []DeviceObject
}

// deviceIdentityServer is the pre-built, request-time-ready form of a
// DeviceIdentity: objects are grouped and sorted by category once, at
// construction, so that serving a request is a pure lookup plus a linear
// walk bounded by deviceObjectBudget. Building it eagerly also lets
// oversized objects be rejected as a configuration error instead of
// silently truncating a live response.
type deviceIdentityServer struct {
	conformityLevel DeviceConformityLevel
	basic           deviceIDCategory
	regular         deviceIDCategory
	extended        deviceIDCategory
	byID            map[uint8]DeviceObject
}

func newDeviceIdentityServer(identity DeviceIdentity) (*deviceIdentityServer, error) {
	d := &deviceIdentityServer{
		conformityLevel: identity.ConformityLevel,
		byID:            make(map[uint8]DeviceObject),
	}

	for _, obj := range identity.Objects {
		if 2+len(obj.Value) > deviceObjectBudget {
			return nil, ErrObjectTooLarge
		}

		switch obj.Category {
		case ReadDeviceBasic:
			d.basic.objects = append(d.basic.objects, obj)
		case ReadDeviceRegular:
			d.regular.objects = append(d.regular.objects, obj)
		case ReadDeviceExtended:
			d.extended.objects = append(d.extended.objects, obj)
		default:
			return nil, ErrUnexpectedParameters
		}

		d.byID[obj.ID] = obj
	}

	for _, cat := range []*deviceIDCategory{&d.basic, &d.regular, &d.extended} {
		sort.Slice(cat.objects, func(i, j int) bool {
			return cat.objects[i].ID < cat.objects[j].ID
		})
	}

	return d, nil
}

func (d *deviceIdentityServer) categoryFor(code ReadDeviceCode) *deviceIDCategory {
	switch code {
	case ReadDeviceBasic:
		return &d.basic
	case ReadDeviceRegular:
		return &d.regular
	case ReadDeviceExtended:
		return &d.extended
	default:
		return nil
	}
}

// serialize builds the response payload for a Read Device Identification
// request, streaming as many objects as fit in deviceObjectBudget and
// reporting a continuation point (more-follows/next-object-id) for the
// rest. The more-follows flag, next object id and object count fields are
// reserved up front and patched in once the walk is done, since none of
// them are known until the budget has actually been exhausted (or not).
func (d *deviceIdentityServer) serialize(code ReadDeviceCode, objectID uint8) (payload []byte, err error) {
	cur := newWriteCursor()
	cur.putUint8(meiTypeReadDeviceID)
	cur.putUint8(uint8(code))
	cur.putUint8(uint8(d.conformityLevel))

	moreFollowsSlot := cur.reserve(1)
	nextObjectIDSlot := cur.reserve(1)
	objectCountSlot := cur.reserve(1)

	var objs []DeviceObject

	if code == ReadDeviceSpecific {
		if !d.conformityLevel.supportsIndividualAccess() {
			return nil, ErrIllegalDataAddress
		}
		obj, ok := d.byID[objectID]
		if !ok {
			return nil, ErrIllegalDataAddress
		}
		objs = []DeviceObject{obj}
	} else {
		cat := d.categoryFor(code)
		if cat == nil {
			return nil, ErrIllegalDataValue
		}
		objs = cat.objects
	}

	start := 0
	if code != ReadDeviceSpecific {
		for start < len(objs) && objs[start].ID < objectID {
			start++
		}
	}

	var (
		written      int
		count        uint8
		moreFollows  bool
		nextObjectID uint8
	)

	for i := start; i < len(objs); i++ {
		obj := objs[i]
		encoded := 2 + len(obj.Value)

		if written+encoded > deviceObjectBudget {
			moreFollows = true
			nextObjectID = obj.ID
			break
		}

		cur.putUint8(obj.ID)
		cur.putUint8(uint8(len(obj.Value)))
		cur.putBytes([]byte(obj.Value))

		written += encoded
		count++
	}

	if moreFollows {
		cur.fill(moreFollowsSlot, []byte{0xff})
	} else {
		cur.fill(moreFollowsSlot, []byte{0x00})
	}
	cur.fill(nextObjectIDSlot, []byte{nextObjectID})
	cur.fill(objectCountSlot, []byte{count})

	return cur.bytes(), nil
}

// DeviceIdentificationPage is one decoded Read Device Identification
// response, as returned by the client's paging loop before pages are
// flattened into a single object list.
type DeviceIdentificationPage struct {
	ConformityLevel DeviceConformityLevel
	Objects         []DeviceObject
	MoreFollows     bool
	NextObjectID    uint8
}

// parseDeviceIdentificationResponse decodes a single Read Device
// Identification response page. Object category tags aren't carried on
// the wire per-object, so decoded objects are tagged with the category
// that was requested.
func parseDeviceIdentificationResponse(requested ReadDeviceCode, payload []byte) (*DeviceIdentificationPage, error) {
	rc := newReadCursor(payload)

	meiType, err := rc.getUint8()
	if err != nil {
		return nil, ErrProtocolError
	}
	if meiType != meiTypeReadDeviceID {
		return nil, ErrProtocolError
	}

	if _, err = rc.getUint8(); err != nil { // echoed read device id code
		return nil, ErrProtocolError
	}

	conformityByte, err := rc.getUint8()
	if err != nil {
		return nil, ErrProtocolError
	}

	moreFollowsByte, err := rc.getUint8()
	if err != nil {
		return nil, ErrProtocolError
	}

	nextObjectID, err := rc.getUint8()
	if err != nil {
		return nil, ErrProtocolError
	}

	objectCount, err := rc.getUint8()
	if err != nil {
		return nil, ErrProtocolError
	}

	page := &DeviceIdentificationPage{
		ConformityLevel: DeviceConformityLevel(conformityByte),
		MoreFollows:     moreFollowsByte == 0xff,
		NextObjectID:    nextObjectID,
	}

	for i := uint8(0); i < objectCount; i++ {
		id, err := rc.getUint8()
		if err != nil {
			return nil, ErrProtocolError
		}

		length, err := rc.getUint8()
		if err != nil {
			return nil, ErrProtocolError
		}

		value, err := rc.getBytes(int(length))
		if err != nil {
			return nil, ErrProtocolError
		}

		page.Objects = append(page.Objects, DeviceObject{
			ID:       id,
			Category: requested,
			Value:    string(value),
		})
	}

	return page, nil
}
