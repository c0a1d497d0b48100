//go:build linux

package hal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
)

// ioctl requests from linux/i2c-dev.h and linux/spi/spidev.h.
const (
	i2cSlave = 0x0703

	// spiIOCMessage1 is SPI_IOC_MESSAGE(1): _IOW('k', 0, struct spi_ioc_transfer[1]).
	spiIOCMessage1 = 0x40206b00

	spiSpeedHz     = 1_000_000
	spiBitsPerWord = 8
)

// openLinux opens the character devices and sysfs files named in cfg.
func openLinux(cfg config.HardwareConfig) (b *Board, err error) {
	b = &Board{}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	i2c, err := OpenI2CDev(cfg.I2CBus)
	if err != nil {
		return nil, err
	}
	b.I2C = i2c
	b.closers = append(b.closers, i2c.Close)

	spi, err := OpenSPIDev(cfg.SPIDevice)
	if err != nil {
		return nil, err
	}
	b.SPI = spi
	b.closers = append(b.closers, spi.Close)

	b.ADC = &IIOChannel{Path: cfg.ADCPath}

	if b.StatusLED, err = ExportGPIO(cfg.GPIORoot, cfg.StatusLEDPin); err != nil {
		return nil, err
	}
	if b.Heater, err = ExportGPIO(cfg.GPIORoot, cfg.HeaterPin); err != nil {
		return nil, err
	}
	return b, nil
}

// I2CDev is an i2c-dev character device implementing drivers.I2C.
//
// Register reads are issued as a write followed by a separate read, which
// both supported sensors accept.
type I2CDev struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
	set  bool
}

// OpenI2CDev opens an i2c-dev node such as /dev/i2c-1.
func OpenI2CDev(path string) (*I2CDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening i2c bus: %w", err)
	}
	return &I2CDev{f: f}, nil
}

// Tx implements drivers.I2C.
func (d *I2CDev) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.set || d.addr != addr {
		if err := ioctl(d.f.Fd(), i2cSlave, uintptr(addr)); err != nil {
			return fmt.Errorf("selecting i2c address %#02x: %w", addr, err)
		}
		d.addr, d.set = addr, true
	}
	if len(w) > 0 {
		if _, err := d.f.Write(w); err != nil {
			return fmt.Errorf("i2c write to %#02x: %w", addr, err)
		}
	}
	if len(r) > 0 {
		n, err := d.f.Read(r)
		if err != nil {
			return fmt.Errorf("i2c read from %#02x: %w", addr, err)
		}
		if n < len(r) {
			return fmt.Errorf("%w: got %d of %d bytes from %#02x", ErrShortRead, n, len(r), addr)
		}
	}
	return nil
}

// Close releases the device.
func (d *I2CDev) Close() error {
	return d.f.Close()
}

var _ drivers.I2C = (*I2CDev)(nil)

// SPIDev is a spidev character device implementing drivers.SPI.
type SPIDev struct {
	mu sync.Mutex
	f  *os.File
}

// OpenSPIDev opens a spidev node such as /dev/spidev0.0.
func OpenSPIDev(path string) (*SPIDev, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening spi device: %w", err)
	}
	return &SPIDev{f: f}, nil
}

// spiIOCTransfer mirrors struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Tx implements drivers.SPI as one full-duplex transfer. When both buffers
// are given they must be the same length.
func (s *SPIDev) Tx(w, r []byte) error {
	n := max(len(w), len(r))
	if n == 0 {
		return nil
	}
	if len(w) > 0 && len(r) > 0 && len(w) != len(r) {
		return errors.New("spi: read and write buffers differ in length")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	xfer := spiIOCTransfer{
		length:      uint32(n),
		speedHz:     spiSpeedHz,
		bitsPerWord: spiBitsPerWord,
	}
	if len(w) > 0 {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&w[0])))
	}
	if len(r) > 0 {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), spiIOCMessage1, uintptr(unsafe.Pointer(&xfer)))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	if errno != 0 {
		return fmt.Errorf("spi transfer: %w", errno)
	}
	return nil
}

// Transfer implements drivers.SPI.
func (s *SPIDev) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

// Close releases the device.
func (s *SPIDev) Close() error {
	return s.f.Close()
}

var _ drivers.SPI = (*SPIDev)(nil)

func ioctl(fd, req, arg uintptr) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg); errno != 0 {
		return errno
	}
	return nil
}

// SysfsGPIO is an output pin under /sys/class/gpio.
type SysfsGPIO struct {
	valuePath string
}

// ExportGPIO exports pin under root if needed and configures it as an output.
func ExportGPIO(root string, pin int) (*SysfsGPIO, error) {
	dir := filepath.Join(root, fmt.Sprintf("gpio%d", pin))
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("exporting gpio %d: %w", pin, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("setting gpio %d direction: %w", pin, err)
	}
	return &SysfsGPIO{valuePath: filepath.Join(dir, "value")}, nil
}

// Set implements Pin.
func (g *SysfsGPIO) Set(high bool) error {
	v := []byte("0")
	if high {
		v = []byte("1")
	}
	if err := os.WriteFile(g.valuePath, v, 0o644); err != nil {
		return fmt.Errorf("writing gpio: %w", err)
	}
	return nil
}

// Get implements Pin.
func (g *SysfsGPIO) Get() (bool, error) {
	data, err := os.ReadFile(g.valuePath)
	if err != nil {
		return false, fmt.Errorf("reading gpio: %w", err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

// IIOChannel reads raw counts from an industrial I/O sysfs attribute such
// as in_voltage0_raw.
type IIOChannel struct {
	Path string
}

// Read implements ADC.
func (c *IIOChannel) Read() (uint16, error) {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return 0, fmt.Errorf("reading adc: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSample, data)
	}
	return uint16(v), nil
}
