package muxclient

// PairRecord is the persistent credential pairing a host with a device:
// the host's TLS identity and the device's trust material.
type PairRecord struct {
	HostID            string
	SystemBUID        string
	HostCertificate   []byte // PEM
	HostPrivateKey    []byte // PEM
	DeviceCertificate []byte // PEM
	RootCertificate   []byte // PEM
	WiFiMACAddress    string
}

// HasTLSIdentity reports whether r carries everything LockdownClient needs
// to upgrade a session to TLS: host id, system BUID, certificate, and key.
func (r *PairRecord) HasTLSIdentity() bool {
	return r != nil &&
		r.HostID != "" &&
		r.SystemBUID != "" &&
		len(r.HostCertificate) > 0 &&
		len(r.HostPrivateKey) > 0
}

// DeviceProperties holds the subset of a Device's USB properties this
// module cares about.
type DeviceProperties struct {
	SerialNumber     string
	ConnectionType   string
	ProductID        int64
	LocationID       int64
	USBSerialNumber  string
	ConnectionSpeed  int64
}

// Device is one entry of a ListDevices response.
type Device struct {
	DeviceID   uint32
	Properties DeviceProperties
}
