package lcd

import "errors"

var (
	// ErrNoDevice means USB enumeration found no device with the
	// expected vendor/product ID.
	ErrNoDevice = errors.New("lcd: no matching USB device")

	// ErrClaimFailed means the device was found but opening the
	// configuration, claiming interface 0, or resetting it failed.
	ErrClaimFailed = errors.New("lcd: interface claim failed")

	// ErrTransferFailed means a frame upload did not go through: the
	// frame was not FrameBytes long, or a chunk command ended without a
	// good CSW status (bulk I/O failures arrive here as phase errors).
	ErrTransferFailed = errors.New("lcd: bulk transfer failed")

	// ErrProtocol means the CSW was malformed: bad signature, short
	// read, or a tag that does not echo the CBW tag.
	ErrProtocol = errors.New("lcd: protocol error")

	// ErrDeviceNotReady means TEST UNIT READY reported a check
	// condition or phase error.
	ErrDeviceNotReady = errors.New("lcd: device not ready")

	// ErrHandshakeTimeout means the startup handshake did not settle
	// within its deadline.
	ErrHandshakeTimeout = errors.New("lcd: handshake timeout")
)
