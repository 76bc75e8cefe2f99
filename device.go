package hackrf

/*
#include <stdlib.h>
#include <stdint.h>
#include <libhackrf/hackrf.h>

static inline void* streamContext(uintptr_t h) {
	return (void*)h;
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/chronowave/hackrf-bridge/bridge"
	"github.com/chronowave/hackrf-bridge/stream"
)

type Device struct {
	cdev *C.hackrf_device

	mu       sync.Mutex
	sessions [2]*stream.Session
}

// Open opens the first HackRF found on the USB bus.
func Open() (*Device, error) {
	var d Device
	if r := C.hackrf_open(&d.cdev); r != C.HACKRF_SUCCESS {
		return nil, toError(r)
	}
	return &d, nil
}

// OpenBySerial opens the device whose serial number ends with serial.
func OpenBySerial(serial string) (*Device, error) {
	cs := C.CString(serial)
	defer C.free(unsafe.Pointer(cs))
	var d Device
	if r := C.hackrf_open_by_serial(cs, &d.cdev); r != C.HACKRF_SUCCESS {
		return nil, toError(r)
	}
	return &d, nil
}

// Close stops any running stream and releases the device. Stream sessions
// are closed even when libhackrf reports an error.
func (d *Device) Close() error {
	e := toError(C.hackrf_close(d.cdev))
	if e == nil {
		d.cdev = nil
	}
	d.release(bridge.Receive)
	d.release(bridge.Transmit)
	return e
}

func (d *Device) Version() (string, error) {
	ver := (*C.char)(C.malloc(128))
	defer C.free(unsafe.Pointer(ver))
	if r := C.hackrf_version_string_read(d.cdev, ver, 128); r != C.HACKRF_SUCCESS {
		return "", toError(r)
	}
	return C.GoString(ver), nil
}

func (d *Device) BoardID() (uint8, error) {
	var id C.uint8_t
	if r := C.hackrf_board_id_read(d.cdev, &id); r != C.HACKRF_SUCCESS {
		return 0, toError(r)
	}
	return uint8(id), nil
}

// BoardName returns the marketing name of the attached board.
func (d *Device) BoardName() (string, error) {
	id, err := d.BoardID()
	if err != nil {
		return "", err
	}
	return C.GoString(C.hackrf_board_id_name(C.enum_hackrf_board_id(id))), nil
}

// StartRX starts receiving. cb is called once per filled transfer buffer.
func (d *Device) StartRX(cb Callback) error {
	s := dispatcher.Register(cb, bridge.Receive)
	if err := toError(C.hackrf_start_rx(d.cdev, rxCallback(), C.streamContext(C.uintptr_t(s.Handle())))); err != nil {
		s.Close()
		return err
	}
	d.attach(s)
	return nil
}

func (d *Device) StopRX() error {
	err := toError(C.hackrf_stop_rx(d.cdev))
	d.release(bridge.Receive)
	return err
}

// StartTX starts transmitting, asking the callback to fill each buffer.
func (d *Device) StartTX(cb Callback) error {
	s := dispatcher.Register(cb, bridge.Transmit)
	if err := toError(C.hackrf_start_tx(d.cdev, txCallback(), C.streamContext(C.uintptr_t(s.Handle())))); err != nil {
		s.Close()
		return err
	}
	d.attach(s)
	return nil
}

func (d *Device) StopTX() error {
	err := toError(C.hackrf_stop_tx(d.cdev))
	d.release(bridge.Transmit)
	return err
}

// IsStreaming reports whether libhackrf still has a live stream. It turns
// false once a callback has stopped the stream.
func (d *Device) IsStreaming() bool {
	return C.hackrf_is_streaming(d.cdev) == C.HACKRF_TRUE
}

// Session returns the stream session for dir, or nil when none is running
// or dir is not a stream direction.
func (d *Device) Session(dir bridge.Direction) *stream.Session {
	if dir != bridge.Receive && dir != bridge.Transmit {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[dir]
}

func (d *Device) attach(s *stream.Session) {
	d.mu.Lock()
	old := d.sessions[s.Direction()]
	d.sessions[s.Direction()] = s
	d.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (d *Device) release(dir bridge.Direction) {
	d.mu.Lock()
	s := d.sessions[dir]
	d.sessions[dir] = nil
	d.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (d *Device) SetFreq(freqHz uint64) error {
	return toError(C.hackrf_set_freq(d.cdev, C.uint64_t(freqHz)))
}

// SetSampleRateManual sets the sample rate to freqHz/divider. 8, 10, 12.5,
// 16 and 20 MHz give the cleanest clock.
func (d *Device) SetSampleRateManual(freqHz, divider int) error {
	return toError(C.hackrf_set_sample_rate_manual(d.cdev, C.uint32_t(freqHz), C.uint32_t(divider)))
}

// SetSampleRate sets the sample rate in Hz.
func (d *Device) SetSampleRate(freqHz float64) error {
	return toError(C.hackrf_set_sample_rate(d.cdev, C.double(freqHz)))
}

// SetBasebandFilterBandwidth selects the MAX2837 baseband filter. The
// hardware supports 1.75 to 28 MHz in fixed steps; see
// ComputeBasebandFilterBW.
func (d *Device) SetBasebandFilterBandwidth(hz int) error {
	return toError(C.hackrf_set_baseband_filter_bandwidth(d.cdev, C.uint32_t(hz)))
}

// SetAmpEnable switches the RF front-end amplifier, shared by RX and TX.
func (d *Device) SetAmpEnable(value bool) error {
	var v C.uint8_t
	if value {
		v = 1
	}
	return toError(C.hackrf_set_amp_enable(d.cdev, v))
}

// SetLNAGain sets the RX IF gain, 0-40 dB in 8 dB steps.
func (d *Device) SetLNAGain(value int) error {
	return toError(C.hackrf_set_lna_gain(d.cdev, C.uint32_t(value)))
}

// SetVGAGain sets the RX baseband gain, 0-62 dB in 2 dB steps.
func (d *Device) SetVGAGain(value int) error {
	return toError(C.hackrf_set_vga_gain(d.cdev, C.uint32_t(value)))
}

// SetTXVGAGain sets the TX IF gain, 0-47 dB.
func (d *Device) SetTXVGAGain(value int) error {
	return toError(C.hackrf_set_txvga_gain(d.cdev, C.uint32_t(value)))
}

// SetAntennaEnable switches bias-tee power on the antenna port.
func (d *Device) SetAntennaEnable(enabled bool) error {
	var value C.uint8_t
	if enabled {
		value = 1
	}
	return toError(C.hackrf_set_antenna_enable(d.cdev, value))
}

// ComputeBasebandFilterBWRoundDownLT returns the widest supported filter
// strictly below bandwidthHz.
func ComputeBasebandFilterBWRoundDownLT(bandwidthHz int) int {
	return int(C.hackrf_compute_baseband_filter_bw_round_down_lt(C.uint32_t(bandwidthHz)))
}

// ComputeBasebandFilterBW returns the supported filter closest to
// bandwidthHz, as libhackrf picks it automatically for a sample rate.
func ComputeBasebandFilterBW(bandwidthHz int) int {
	return int(C.hackrf_compute_baseband_filter_bw(C.uint32_t(bandwidthHz)))
}
