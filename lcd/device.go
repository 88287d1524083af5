package lcd

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/the-black-eagle/Thermalright-usblcd/log"
)

const (
	// VendorID and ProductID identify the Thermalright panel. No other
	// device is supported.
	VendorID  = 0x0402
	ProductID = 0x3922

	interfaceNum = 0

	// Bulk endpoint numbers and their full addresses. The numbers open
	// the endpoints through gousb; the addresses go on the wire in
	// CLEAR_FEATURE requests.
	epInNum   = 1
	epOutNum  = 2
	epInAddr  = 0x81
	epOutAddr = 0x02

	cbwTimeout  = time.Second
	dataTimeout = 2 * time.Second
	cswTimeout  = time.Second

	cbwLen = 31
	cswLen = 13

	cswStatusGood           = 0
	cswStatusCheckCondition = 1
	cswStatusPhaseError     = 2
)

var (
	cbwSignature = [4]byte{'U', 'S', 'B', 'C'}
	cswSignature = [4]byte{'U', 'S', 'B', 'S'}
)

// ScsiResult is the outcome of one SCSI round trip. Status carries the
// CSW status byte; transfer-level failures are folded into a phase
// error so callers have a single reset signal.
type ScsiResult struct {
	OK     bool
	Status byte
	Data   []byte
}

// Device is an open handle on the panel. It is single-producer: the
// caller must not issue SCSI commands concurrently, or the CBW/CSW
// pairing on the shared endpoint pair is corrupted.
type Device struct {
	tr   transport
	tag  *atomic.Uint32
	logs *log.Children

	// handshakeDeadline bounds both handshake stages together.
	handshakeDeadline time.Duration
}

var (
	openMu  sync.Mutex
	current *Device
)

// Open opens the panel identified by vid/pid. At most one handle
// exists per process; opening while a handle is live closes the old
// handle first and reopens.
func Open(vid, pid uint16, logs *log.Children) (*Device, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if current != nil {
		current.tr.close()
		current.tr = nil
		current = nil
	}

	tr, err := openUSB(vid, pid)
	if err != nil {
		return nil, err
	}

	d := newDevice(tr, logs)
	current = d
	logs.USB.Infof("opened device %04x:%04x", vid, pid)
	return d, nil
}

func newDevice(tr transport, logs *log.Children) *Device {
	return &Device{
		tr:                tr,
		tag:               atomic.NewUint32(0),
		logs:              logs,
		handshakeDeadline: 10 * time.Second,
	}
}

// Close releases the interface and closes the handle. Safe to call
// repeatedly.
func (d *Device) Close() error {
	openMu.Lock()
	defer openMu.Unlock()

	if d.tr == nil {
		return nil
	}
	err := d.tr.close()
	d.tr = nil
	if current == d {
		current = nil
	}
	return err
}

func buildCBW(tag, dataLen uint32, deviceToHost bool, cdb []byte) []byte {
	cbw := make([]byte, cbwLen)
	copy(cbw[0:4], cbwSignature[:])
	binary.LittleEndian.PutUint32(cbw[4:8], tag)
	binary.LittleEndian.PutUint32(cbw[8:12], dataLen)
	if deviceToHost {
		cbw[12] = 0x80
	}
	cbw[13] = 0 // LUN
	cbw[14] = byte(len(cdb))
	copy(cbw[15:], cdb)
	return cbw
}

// SendSCSI runs one command through the CBW / data / CSW sequence. cdb
// is 6-16 bytes. dataOut and dataInLen are mutually exclusive; when
// dataInLen > 0 the command expects that many bytes from the device.
// A zero tag requests auto-assignment from the handle's counter; the
// handshake passes explicit tags reproducing a captured trace.
//
// Every bulk I/O failure, malformed CSW, or tag mismatch is reported
// as a phase error; the device never surfaces through an error return.
func (d *Device) SendSCSI(cdb, dataOut []byte, dataInLen int, tag uint32) ScsiResult {
	if tag == 0 {
		tag = d.tag.Inc()
	}

	dataLen := uint32(len(dataOut))
	if dataInLen > 0 {
		dataLen = uint32(dataInLen)
	}
	cbw := buildCBW(tag, dataLen, dataInLen > 0, cdb)

	if d.logs.USB.IsDebug() {
		d.logs.USB.Debugf("CBW: % x", cbw)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cbwTimeout)
	n, err := d.tr.writeBulk(ctx, cbw)
	cancel()
	if err != nil || n != cbwLen {
		d.logs.USB.Debugf("CBW write failed: n=%d err=%v", n, err)
		return ScsiResult{Status: cswStatusPhaseError}
	}

	var dataIn []byte
	if dataInLen > 0 {
		dataIn = make([]byte, dataInLen)
		ctx, cancel := context.WithTimeout(context.Background(), dataTimeout)
		n, err := d.tr.readBulk(ctx, dataIn)
		cancel()
		if err != nil {
			d.logs.USB.Debugf("data-in failed: %v", err)
			return ScsiResult{Status: cswStatusPhaseError}
		}
		dataIn = dataIn[:n]
	} else if len(dataOut) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), dataTimeout)
		n, err := d.tr.writeBulk(ctx, dataOut)
		cancel()
		if err != nil || n != len(dataOut) {
			d.logs.USB.Debugf("data-out failed: n=%d err=%v", n, err)
			return ScsiResult{Status: cswStatusPhaseError}
		}
	}

	csw := make([]byte, cswLen)
	ctx, cancel = context.WithTimeout(context.Background(), cswTimeout)
	n, err = d.tr.readBulk(ctx, csw)
	cancel()
	if err != nil || n != cswLen || string(csw[0:4]) != string(cswSignature[:]) {
		d.logs.USB.Debugf("CSW invalid: n=%d err=%v", n, err)
		return ScsiResult{Status: cswStatusPhaseError, Data: dataIn}
	}
	if echoed := binary.LittleEndian.Uint32(csw[4:8]); echoed != tag {
		d.logs.USB.Debugf("CSW tag mismatch: got %08x want %08x", echoed, tag)
		return ScsiResult{Status: cswStatusPhaseError, Data: dataIn}
	}

	res := ScsiResult{
		Status: csw[12],
		Data:   dataIn,
	}
	res.OK = res.Status == cswStatusGood

	if d.logs.USB.IsDebug() {
		d.logs.USB.Debugf("CDB % x | status=%d ok=%v dataIn=%d bytes",
			cdb, res.Status, res.OK, len(res.Data))
	}
	return res
}

// ResetTransport issues a Bulk-Only Mass Storage Reset and clears the
// halt condition on both bulk endpoints.
func (d *Device) ResetTransport() {
	if d.tr == nil {
		return
	}

	// bmRequestType 0x21: host-to-device, class, interface.
	if _, err := d.tr.control(0x21, 0xFF, 0, interfaceNum, nil); err != nil {
		d.logs.USB.Debugf("mass storage reset failed: %v", err)
	}
	d.clearHalt(epInAddr)
	d.clearHalt(epOutAddr)
}

// clearHalt sends CLEAR_FEATURE(ENDPOINT_HALT) for the endpoint
// address.
func (d *Device) clearHalt(ep uint16) {
	if _, err := d.tr.control(0x02, 0x01, 0x00, ep, nil); err != nil {
		d.logs.USB.Debugf("clear halt 0x%02x failed: %v", ep, err)
	}
}

// Ready probes the panel with TEST UNIT READY. On check condition it
// requests sense data, and for both check condition and phase error it
// resets the transport before reporting not ready.
func (d *Device) Ready() bool {
	tur := make([]byte, 6)
	res := d.SendSCSI(tur, nil, 0, 0)
	if res.OK {
		return true
	}

	switch res.Status {
	case cswStatusCheckCondition:
		sense := d.SendSCSI(requestSenseCDB(), nil, senseLen, 0)
		if key, asc, ascq, ok := senseTriple(sense.Data); ok {
			d.logs.USB.Debugf("sense key=%d ASC=0x%02x ASCQ=0x%02x", key, asc, ascq)
		}
		d.ResetTransport()
	case cswStatusPhaseError:
		d.ResetTransport()
	}
	return false
}

const senseLen = 18

func requestSenseCDB() []byte {
	return []byte{0x03, 0x00, 0x00, 0x00, senseLen, 0x00}
}

// senseTriple decodes the key/ASC/ASCQ fields of fixed-format sense
// data. ok is false when the response is too short to carry them.
func senseTriple(data []byte) (key, asc, ascq byte, ok bool) {
	if len(data) < 14 {
		return 0, 0, 0, false
	}
	return data[2] & 0x0F, data[12], data[13], true
}
