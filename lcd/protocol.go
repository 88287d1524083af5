package lcd

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// vendorOpcode carries both frame-chunk uploads and the startup
	// probe commands.
	vendorOpcode = 0xF5

	// handshakeTag is the fixed CBW tag the vendor software uses for
	// the stage-2 probe sequence, reproduced from a wire capture.
	handshakeTag = 0x628BF560

	// splashLen is the size of the splash payload the device serves
	// during startup.
	splashLen = 57627
)

// UpdateImage packs a 320x240 RGB frame and uploads it as three vendor
// chunk commands, strictly in index order on the same endpoint pair.
// The first chunk whose CSW is not good fails the whole frame; the
// caller decides whether to retry or reopen.
func (d *Device) UpdateImage(frame []byte) error {
	if len(frame) != FrameBytes {
		return fmt.Errorf("%w: frame is %d bytes, want %d", ErrTransferFailed, len(frame), FrameBytes)
	}

	chunks := PackFrame(frame)
	for i, chunk := range chunks {
		cdb := make([]byte, 16)
		cdb[0] = vendorOpcode
		cdb[1] = 0x01
		cdb[2] = 0x01
		cdb[3] = byte(i)
		binary.LittleEndian.PutUint32(cdb[12:16], uint32(len(chunk)))

		res := d.SendSCSI(cdb, chunk, 0, 0)
		if !res.OK {
			return fmt.Errorf("%w: chunk %d status %d", ErrTransferFailed, i, res.Status)
		}
	}
	return nil
}

// Handshake replays the vendor software's startup sequence, attempting
// to skip the panel's boot animation. It is best-effort: the sequence
// does not always shorten boot time, and a false return must not stop
// the caller from uploading frames once the animation ends.
//
// Stage 1 preconditions the unit with TEST UNIT READY / MODE SENSE
// until one succeeds; stage 2 replays INQUIRY, the APIX probe, a full
// splash read and an echo of that payload, all under a fixed tag. Both
// stages share a single 10 second deadline; stage 2 checks it between
// commands, so a command already sent runs to its own transfer timeouts.
func (d *Device) Handshake() bool {
	d.logs.LCD.Debug("handshake: starting")

	turCDB := make([]byte, 6)
	modeCDB := []byte{0x1A, 0x00, 0x00, 0x00, 0xC0, 0x00}
	inquiryCDB := []byte{0x12, 0x00, 0x00, 0x00, 0x24, 0x00}

	fullCDB := make([]byte, 16)
	fullCDB[0] = vendorOpcode

	apixCDB := []byte{
		vendorOpcode,
		0x41, 0x50, 0x49, 0x58, // "APIX"
		0xB3, 0x0C, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00,
	}

	deadline := time.Now().Add(d.handshakeDeadline)

	settled := false
	for time.Now().Before(deadline) {
		tur := d.SendSCSI(turCDB, nil, 0, 0)
		if tur.OK {
			d.logs.LCD.Debug("handshake: TUR good")
			settled = true
			break
		}

		if tur.Status == cswStatusCheckCondition {
			sense := d.SendSCSI(requestSenseCDB(), nil, senseLen, 0)
			if key, asc, ascq, ok := senseTriple(sense.Data); ok {
				d.logs.LCD.Debugf("handshake: sense key=%d ASC=0x%02x ASCQ=0x%02x", key, asc, ascq)
			} else {
				d.logs.LCD.Debug("handshake: malformed sense, resetting transport")
				d.ResetTransport()
			}
		}

		mode := d.SendSCSI(modeCDB, nil, 0xC0, 0)
		if mode.OK {
			d.logs.LCD.Debug("handshake: MODE SENSE good")
			settled = true
			break
		}
		if mode.Status == cswStatusCheckCondition {
			sense := d.SendSCSI(requestSenseCDB(), nil, senseLen, 0)
			if _, _, _, ok := senseTriple(sense.Data); !ok {
				d.logs.LCD.Debug("handshake: malformed sense after MODE SENSE, resetting transport")
				d.ResetTransport()
			}
		}

		time.Sleep(5 * time.Millisecond)
	}

	if !settled {
		d.logs.LCD.Infof("handshake: %v", ErrHandshakeTimeout)
		return false
	}

	// The vendor software pauses before the probe burst.
	time.Sleep(50 * time.Millisecond)
	if !time.Now().Before(deadline) {
		d.logs.LCD.Infof("handshake: %v", ErrHandshakeTimeout)
		return false
	}

	inq := d.SendSCSI(inquiryCDB, nil, 36, handshakeTag)
	d.logs.LCD.Debugf("handshake: INQUIRY ok=%v bytes=%d", inq.OK, len(inq.Data))
	if !inq.OK || len(inq.Data) == 0 || !time.Now().Before(deadline) {
		return false
	}

	apix := d.SendSCSI(apixCDB, nil, 12, handshakeTag)
	d.logs.LCD.Debugf("handshake: APIX ok=%v bytes=%d", apix.OK, len(apix.Data))
	if !apix.OK || !time.Now().Before(deadline) {
		return false
	}

	full := d.SendSCSI(fullCDB, nil, splashLen, handshakeTag)
	d.logs.LCD.Debugf("handshake: splash ok=%v bytes=%d", full.OK, len(full.Data))
	if !full.OK || len(full.Data) == 0 || !time.Now().Before(deadline) {
		return false
	}

	echo := d.SendSCSI(fullCDB, full.Data, 0, handshakeTag)
	if !echo.OK {
		d.logs.LCD.Debug("handshake: echo failed")
		return false
	}

	d.logs.LCD.Info("handshake: complete")
	return true
}
