package icm20948

import (
	"encoding/binary"
	"fmt"
	"time"

	"locaty/internal/i2c"
)

var sleep = time.Sleep

// Minimal ICM-20948 driver: accelerometer plus the on-package AK09916
// magnetometer, which is reached directly on the host bus in bypass mode.
//
// WHO_AM_I at 0x00 should return 0xEA; AK09916 WIA2 should return 0x09.

const (
	addrDefault    = 0x68
	magAddrDefault = 0x0C

	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regUserCtrl   = 0x03
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	regIntPinCfg  = 0x0F
	bitBypassEn   = 0x02
	regIntEnable  = 0x10
	regAccelXoutH = 0x2D

	// Bank 2.
	bank2           = 2
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14
	fsAccel4g       = 0x02

	// AK09916.
	magRegWIA2   = 0x01
	magWhoAmIVal = 0x09
	magRegHXL    = 0x11 // HXL..HZH, TMPS, ST2
	magRegCntl2  = 0x31
	magRegCntl3  = 0x32
	magModeCont4 = 0x08 // continuous, 100 Hz
	magBitHOFL   = 0x08 // ST2 overflow
)

// Sample is one accel + mag reading in the accelerometer frame.
type Sample struct {
	Time time.Time
	// Accel in g.
	Ax, Ay, Az float64
	// Mag in uT. MagValid is false on magnetic overflow.
	Mx, My, Mz float64
	MagValid   bool
}

type Device struct {
	dev regIO
	mag regIO

	curBank    byte
	scaleAccel float64
	scaleMag   float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

func DefaultAddress() uint16 { return addrDefault }

func DefaultMagAddress() uint16 { return magAddrDefault }

func New(dev, mag *i2c.Dev) (*Device, error) {
	if dev == nil || mag == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev, mag)
}

func newWithIO(dev, mag regIO) (*Device, error) {
	if dev == nil || mag == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, mag: mag, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	if err := d.initMag(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with auto-selected clock.
	if err := d.dev.WriteReg(regPwrMgmt1, 0x01); err != nil {
		return fmt.Errorf("icm20948: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	// The internal I2C master must be off for bypass to reach the AK09916.
	if err := d.dev.WriteReg(regUserCtrl, 0x00); err != nil {
		return fmt.Errorf("icm20948: user ctrl failed: %w", err)
	}
	if err := d.dev.WriteReg(regIntPinCfg, bitBypassEn); err != nil {
		return fmt.Errorf("icm20948: bypass enable failed: %w", err)
	}

	if err := d.setBank(bank2); err != nil {
		return err
	}
	// sampRate = 1125/(div+1); ~50 Hz.
	_ = d.dev.WriteReg(regAccelSmplrt2, byte(1125/50-1))
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config failed: %w", err)
	}
	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0
	return nil
}

func (d *Device) initMag() error {
	who, err := d.mag.ReadRegU8(magRegWIA2)
	if err != nil {
		return fmt.Errorf("icm20948: mag whoami read failed: %w", err)
	}
	if who != magWhoAmIVal {
		return fmt.Errorf("icm20948: mag whoami=0x%02X want 0x%02X", who, magWhoAmIVal)
	}
	if err := d.mag.WriteReg(magRegCntl3, 0x01); err != nil {
		return fmt.Errorf("icm20948: mag reset failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := d.mag.WriteReg(magRegCntl2, magModeCont4); err != nil {
		return fmt.Errorf("icm20948: mag mode failed: %w", err)
	}
	d.scaleMag = 0.15
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: set bank %d failed: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read accel failed: %w", err)
	}
	a, err := i2c.Vec3(buf, binary.BigEndian)
	if err != nil {
		return Sample{}, err
	}

	// Reading through ST2 releases the data latch for the next measurement.
	mbuf := make([]byte, 8)
	if err := d.mag.ReadReg(magRegHXL, mbuf); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read mag failed: %w", err)
	}
	m, err := i2c.Vec3(mbuf, binary.LittleEndian)
	if err != nil {
		return Sample{}, err
	}

	// AK09916 Y and Z point opposite to the accelerometer axes.
	return Sample{
		Time:     time.Now(),
		Ax:       float64(a[0]) * d.scaleAccel,
		Ay:       float64(a[1]) * d.scaleAccel,
		Az:       float64(a[2]) * d.scaleAccel,
		Mx:       float64(m[0]) * d.scaleMag,
		My:       -float64(m[1]) * d.scaleMag,
		Mz:       -float64(m[2]) * d.scaleMag,
		MagValid: mbuf[7]&magBitHOFL == 0,
	}, nil
}
