package lcd

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// transport is the wire seam under the SCSI state machine: raw bulk
// reads/writes on the endpoint pair plus control requests. The gousb
// implementation below talks to the real panel; tests substitute a
// scripted stub.
type transport interface {
	writeBulk(ctx context.Context, p []byte) (int, error)
	readBulk(ctx context.Context, p []byte) (int, error)
	control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	close() error
}

type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// openUSB opens the device by VID/PID, claims configuration 1 /
// interface 0 with the kernel driver auto-detached, opens the bulk
// endpoint pair and resets the device.
func openUSB(vid, pid uint16) (*usbTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %04x:%04x: %v", ErrNoDevice, vid, pid, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %04x:%04x", ErrNoDevice, vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: auto-detach: %v", ErrClaimFailed, err)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: configuration: %v", ErrClaimFailed, err)
	}

	intf, err := cfg.Interface(interfaceNum, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: interface: %v", ErrClaimFailed, err)
	}

	out, err := intf.OutEndpoint(epOutNum)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: OUT endpoint: %v", ErrClaimFailed, err)
	}

	in, err := intf.InEndpoint(epInNum)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: IN endpoint: %v", ErrClaimFailed, err)
	}

	t := &usbTransport{ctx: ctx, dev: dev, cfg: cfg, intf: intf, out: out, in: in}

	if err := t.dev.Reset(); err != nil {
		t.close()
		return nil, fmt.Errorf("%w: reset: %v", ErrClaimFailed, err)
	}

	return t, nil
}

func (t *usbTransport) writeBulk(ctx context.Context, p []byte) (int, error) {
	return t.out.WriteContext(ctx, p)
}

func (t *usbTransport) readBulk(ctx context.Context, p []byte) (int, error) {
	return t.in.ReadContext(ctx, p)
}

func (t *usbTransport) control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	return t.dev.Control(rType, request, val, idx, data)
}

func (t *usbTransport) close() error {
	t.intf.Close()
	if err := t.cfg.Close(); err != nil {
		t.dev.Close()
		t.ctx.Close()
		return err
	}
	if err := t.dev.Close(); err != nil {
		t.ctx.Close()
		return err
	}
	return t.ctx.Close()
}
