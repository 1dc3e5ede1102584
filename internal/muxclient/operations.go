package muxclient

import (
	"context"
	"net"

	"github.com/gomux/remotexpc/internal/bplist"
	"github.com/gomux/remotexpc/internal/logger"
	"github.com/gomux/remotexpc/internal/plistcodec"
)

// decodeNested decodes a plist embedded as a Data value inside a muxer
// response, probing its dialect independently of the envelope that
// carried it.
func decodeNested(raw []byte) (bplist.Value, plistcodec.Dialect, error) {
	return plistcodec.Decode(raw)
}

func request(messageType string, extra func(*bplist.Dict)) bplist.Value {
	v := bplist.NewDict()
	d, _ := v.Dict()
	d.Set("MessageType", bplist.String(messageType))
	d.Set("ProgName", bplist.String("remotexpc"))
	d.Set("ClientVersionString", bplist.String("remotexpc-1.0"))
	if extra != nil {
		extra(d)
	}
	return v
}

// ReadBUID returns the host's system BUID as the muxer knows it.
func (c *Client) ReadBUID(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, request("ReadBUID", nil))
	if err != nil {
		return "", err
	}
	d, ok := resp.Dict()
	if !ok {
		return "", wrapProtocol(ErrUnexpectedPayload, "ReadBUID response is not a dict")
	}
	buid, ok := d.Get("BUID")
	if !ok {
		return "", wrapProtocol(ErrUnexpectedPayload, "ReadBUID response missing BUID")
	}
	s, ok := buid.String()
	if !ok {
		return "", wrapProtocol(ErrUnexpectedPayload, "BUID is not a string")
	}
	return s, nil
}

// ReadPairRecord fetches the pair record for udid, probing the plist
// dialect the device's muxer used to store it.
func (c *Client) ReadPairRecord(ctx context.Context, udid string) (*PairRecord, error) {
	resp, err := c.request(ctx, request("ReadPairRecord", func(d *bplist.Dict) {
		d.Set("PairRecordID", bplist.String(udid))
	}))
	if err != nil {
		return nil, err
	}
	d, ok := resp.Dict()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "ReadPairRecord response is not a dict")
	}
	dataVal, ok := d.Get("PairRecordData")
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "ReadPairRecord response missing PairRecordData")
	}
	raw, ok := dataVal.Data()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "PairRecordData is not a data value")
	}

	record, err := decodePairRecord(raw)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// decodePairRecord decodes the nested plist embedded in PairRecordData,
// which a device's muxer may have serialized as bplist or XML depending
// on firmware vintage.
func decodePairRecord(raw []byte) (*PairRecord, error) {
	v, dialect, err := decodeNested(raw)
	if err != nil {
		return nil, wrapProtocol(ErrUnexpectedPayload, "pair record plist: "+err.Error())
	}
	logger.Debug("muxclient: decoded pair record", logger.KeyDialect, dialect)

	d, ok := v.Dict()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "pair record is not a dict")
	}

	record := &PairRecord{}
	if s, ok := stringField(d, "HostID"); ok {
		record.HostID = s
	}
	if s, ok := stringField(d, "SystemBUID"); ok {
		record.SystemBUID = s
	}
	if b, ok := dataField(d, "HostCertificate"); ok {
		record.HostCertificate = b
	}
	if b, ok := dataField(d, "HostPrivateKey"); ok {
		record.HostPrivateKey = b
	}
	if b, ok := dataField(d, "DeviceCertificate"); ok {
		record.DeviceCertificate = b
	}
	if b, ok := dataField(d, "RootCertificate"); ok {
		record.RootCertificate = b
	}
	if s, ok := stringField(d, "WiFiMACAddress"); ok {
		record.WiFiMACAddress = s
	}
	return record, nil
}

func stringField(d *bplist.Dict, key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	return v.String()
}

func dataField(d *bplist.Dict, key string) ([]byte, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	return v.Data()
}

// ListDevices returns the devices currently attached to the muxer.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	resp, err := c.request(ctx, request("ListDevices", nil))
	if err != nil {
		return nil, err
	}
	d, ok := resp.Dict()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "ListDevices response is not a dict")
	}
	listVal, ok := d.Get("DeviceList")
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "ListDevices response missing DeviceList")
	}
	entries, ok := listVal.Array()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "DeviceList is not an array")
	}

	devices := make([]Device, 0, len(entries))
	for _, entry := range entries {
		ed, ok := entry.Dict()
		if !ok {
			continue
		}
		dev, err := decodeDeviceEntry(ed)
		if err != nil {
			logger.Debug("muxclient: skipping malformed device entry", logger.KeyErr, err.Error())
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func decodeDeviceEntry(ed *bplist.Dict) (Device, error) {
	propsVal, ok := ed.Get("Properties")
	if !ok {
		return Device{}, wrapProtocol(ErrUnexpectedPayload, "device entry missing Properties")
	}
	props, ok := propsVal.Dict()
	if !ok {
		return Device{}, wrapProtocol(ErrUnexpectedPayload, "device Properties is not a dict")
	}

	var dev Device
	if deviceID, ok := props.Get("DeviceID"); ok {
		if i, ok := deviceID.Int64(); ok {
			dev.DeviceID = uint32(i)
		}
	}
	if s, ok := stringField(props, "SerialNumber"); ok {
		dev.Properties.SerialNumber = s
	}
	if s, ok := stringField(props, "ConnectionType"); ok {
		dev.Properties.ConnectionType = s
	}
	if s, ok := stringField(props, "USBSerialNumber"); ok {
		dev.Properties.USBSerialNumber = s
	}
	if v, ok := props.Get("ProductID"); ok {
		if i, ok := v.Int64(); ok {
			dev.Properties.ProductID = i
		}
	}
	if v, ok := props.Get("LocationID"); ok {
		if i, ok := v.Int64(); ok {
			dev.Properties.LocationID = i
		}
	}
	if v, ok := props.Get("ConnectionSpeed"); ok {
		if i, ok := v.Int64(); ok {
			dev.Properties.ConnectionSpeed = i
		}
	}
	return dev, nil
}

// Connect opens a stream to port on deviceID and returns the raw
// connection with the muxer's own tag dispatch torn down, so the caller
// owns every subsequent byte on the wire (handed to LockdownClient or an
// XpcHandshake next).
func (c *Client) Connect(ctx context.Context, deviceID uint32, port uint16) (net.Conn, error) {
	resp, err := c.request(ctx, request("Connect", func(d *bplist.Dict) {
		d.Set("DeviceID", bplist.Int(int64(deviceID)))
		d.Set("PortNumber", bplist.Int(int64(networkByteSwapUint16(port))))
	}))
	if err != nil {
		return nil, err
	}

	d, ok := resp.Dict()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "Connect response is not a dict")
	}
	numberVal, ok := d.Get("Number")
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "Connect response missing Number")
	}
	number, ok := numberVal.Int64()
	if !ok {
		return nil, wrapProtocol(ErrUnexpectedPayload, "Number is not an integer")
	}

	switch number {
	case 0:
		conn, leftover := c.detach()
		if len(leftover) > 0 {
			return &prefixedConn{Conn: conn, prefix: leftover}, nil
		}
		return conn, nil
	case 3:
		return nil, ErrConnectionRefused
	default:
		return nil, &MuxError{Code: number}
	}
}

// networkByteSwapUint16 swaps port's byte order: the muxer wire format
// carries PortNumber in network byte order inside an otherwise
// little-endian plist integer.
func networkByteSwapUint16(port uint16) uint16 {
	return (port << 8) | (port >> 8)
}

// prefixedConn is a net.Conn whose first reads are served from prefix
// before falling through to the embedded connection, used when detach
// yields bytes already read past the last muxer frame.
type prefixedConn struct {
	net.Conn
	prefix []byte
}

func (p *prefixedConn) Read(b []byte) (int, error) {
	if len(p.prefix) > 0 {
		n := copy(b, p.prefix)
		p.prefix = p.prefix[n:]
		return n, nil
	}
	return p.Conn.Read(b)
}
