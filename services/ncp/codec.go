package ncp

import (
	"google.golang.org/protobuf/encoding/protowire"

	"smokenode/errcode"
	"smokenode/types"
)

// Payloads are protobuf wire messages built field by field with protowire;
// the co-processor firmware shares the field numbers below.

// register
const (
	fRegEndpoint protowire.Number = 1
	fRegMask     protowire.Number = 2
	fRegManuf    protowire.Number = 3
	fRegModel    protowire.Number = 4
	fRegDateCode protowire.Number = 5
	fRegAppVer   protowire.Number = 6
	fRegHWVer    protowire.Number = 7
)

// zone status / attribute
const (
	fEndpoint protowire.Number = 1
	fStatus   protowire.Number = 2
	fCluster  protowire.Number = 2
	fAttr     protowire.Number = 3
	fValue    protowire.Number = 4
)

// signal / network / commission / ping
const (
	fSigKind   protowire.Number = 1
	fSigStatus protowire.Number = 2
	fExtPAN    protowire.Number = 1
	fPAN       protowire.Number = 2
	fChannel   protowire.Number = 3
	fMode      protowire.Number = 1
	fSeq       protowire.Number = 1
)

func appendUint(b []byte, n protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, n, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, n protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, n protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, n, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// fields walks a message, handing varint and bytes fields to fn and skipping
// anything else.
func fields(b []byte, fn func(n protowire.Number, v uint64, bs []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errcode.Wrap(errcode.Frame, "ncp.decode", protowire.ParseError(n))
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errcode.Wrap(errcode.Frame, "ncp.decode", protowire.ParseError(m))
			}
			fn(num, v, nil)
			b = b[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errcode.Wrap(errcode.Frame, "ncp.decode", protowire.ParseError(m))
			}
			fn(num, 0, v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return errcode.Wrap(errcode.Frame, "ncp.decode", protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

// ---- register ----

type registration struct {
	Endpoint uint8
	Mask     uint32
	Identity types.DeviceIdentity
}

func encodeRegister(r registration) []byte {
	var b []byte
	b = appendUint(b, fRegEndpoint, uint64(r.Endpoint))
	b = appendUint(b, fRegMask, uint64(r.Mask))
	b = appendString(b, fRegManuf, r.Identity.Manufacturer)
	b = appendString(b, fRegModel, r.Identity.Model)
	b = appendString(b, fRegDateCode, r.Identity.DateCode)
	b = appendUint(b, fRegAppVer, uint64(r.Identity.AppVersion))
	b = appendUint(b, fRegHWVer, uint64(r.Identity.HWVersion))
	return b
}

func decodeRegister(b []byte) (registration, error) {
	var r registration
	err := fields(b, func(n protowire.Number, v uint64, bs []byte) {
		switch n {
		case fRegEndpoint:
			r.Endpoint = uint8(v)
		case fRegMask:
			r.Mask = uint32(v)
		case fRegManuf:
			r.Identity.Manufacturer = string(bs)
		case fRegModel:
			r.Identity.Model = string(bs)
		case fRegDateCode:
			r.Identity.DateCode = string(bs)
		case fRegAppVer:
			r.Identity.AppVersion = uint32(v)
		case fRegHWVer:
			r.Identity.HWVersion = uint32(v)
		}
	})
	return r, err
}

// ---- reports ----

func encodeZoneStatus(ep uint8, status uint16) []byte {
	b := appendUint(nil, fEndpoint, uint64(ep))
	return appendUint(b, fStatus, uint64(status))
}

func decodeZoneStatus(b []byte) (types.AlarmReport, error) {
	var r types.AlarmReport
	err := fields(b, func(n protowire.Number, v uint64, _ []byte) {
		switch n {
		case fEndpoint:
			r.Endpoint = uint8(v)
		case fStatus:
			r.Active = uint16(v)&types.ZoneStatusAlarm1 != 0
		}
	})
	return r, err
}

func encodeAttr(a types.AttributeReport) []byte {
	b := appendUint(nil, fEndpoint, uint64(a.Endpoint))
	b = appendUint(b, fCluster, uint64(a.Cluster))
	b = appendUint(b, fAttr, uint64(a.Attr))
	return appendBytes(b, fValue, a.Value)
}

func decodeAttr(b []byte) (types.AttributeReport, error) {
	var a types.AttributeReport
	err := fields(b, func(n protowire.Number, v uint64, bs []byte) {
		switch n {
		case fEndpoint:
			a.Endpoint = uint8(v)
		case fCluster:
			a.Cluster = uint16(v)
		case fAttr:
			a.Attr = uint16(v)
		case fValue:
			a.Value = append([]byte(nil), bs...)
		}
	})
	return a, err
}

// ---- lifecycle ----

func encodeSignal(s types.NetSignal) []byte {
	b := appendUint(nil, fSigKind, uint64(s.Kind))
	return appendUint(b, fSigStatus, protowire.EncodeZigZag(int64(s.Status)))
}

func decodeSignal(b []byte) (types.NetSignal, error) {
	var s types.NetSignal
	err := fields(b, func(n protowire.Number, v uint64, _ []byte) {
		switch n {
		case fSigKind:
			s.Kind = types.SignalKind(v)
		case fSigStatus:
			s.Status = int32(protowire.DecodeZigZag(v))
		}
	})
	return s, err
}

func encodeNetwork(ni types.NetworkInfo) []byte {
	b := appendUint(nil, fExtPAN, ni.ExtPANID)
	b = appendUint(b, fPAN, uint64(ni.PANID))
	return appendUint(b, fChannel, uint64(ni.Channel))
}

func decodeNetwork(b []byte) (types.NetworkInfo, error) {
	var ni types.NetworkInfo
	err := fields(b, func(n protowire.Number, v uint64, _ []byte) {
		switch n {
		case fExtPAN:
			ni.ExtPANID = v
		case fPAN:
			ni.PANID = uint16(v)
		case fChannel:
			ni.Channel = uint8(v)
		}
	})
	return ni, err
}

func encodeMode(m types.CommissionMode) []byte { return appendUint(nil, fMode, uint64(m)) }

func decodeMode(b []byte) (types.CommissionMode, error) {
	var m types.CommissionMode
	err := fields(b, func(n protowire.Number, v uint64, _ []byte) {
		if n == fMode {
			m = types.CommissionMode(v)
		}
	})
	return m, err
}

func encodeSeq(seq uint64) []byte { return appendUint(nil, fSeq, seq) }

func decodeSeq(b []byte) (uint64, error) {
	var seq uint64
	err := fields(b, func(n protowire.Number, v uint64, _ []byte) {
		if n == fSeq {
			seq = v
		}
	})
	return seq, err
}
