package models

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

// EmergencyRecord is the minimal forensic trail written when the system
// crosses into Critical or above. The wire form is a fixed binary layout
// so the record survives as a single atomic blob even if the process dies
// right after the incident:
//
//	offset size field
//	0      4    magic (0xB011E4EC, big endian)
//	4      8    unix timestamp, seconds (big endian)
//	12     1    reason code
//	13     1    failsafe level
//	14     1    active relay mask
//	15     1    flags (bit0 heating active, bit1 water active)
//	16     2    last boiler supply temperature (int16 tenths °C)
//	18     2    last system pressure (int16 hundredths bar)
//	20     4    CRC-32 (IEEE) over bytes 0..19
type EmergencyRecord struct {
	// ID identifies the stored row; not part of the binary layout.
	ID            string         `json:"id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Reason        FailsafeReason `json:"-"`
	ReasonText    string         `json:"reason"`
	Level         FailsafeLevel  `json:"-"`
	LevelText     string         `json:"level"`
	ActiveRelays  RelayMask      `json:"active_relays"`
	HeatingActive bool           `json:"heating_active"`
	WaterActive   bool           `json:"water_active"`
	BoilerTemp    Temperature    `json:"boiler_temp_tenths"`
	Pressure      Pressure       `json:"pressure_hundredths"`
}

const (
	emergencyMagic     = 0xB011E4EC
	emergencyBlobSize  = 24
	flagHeatingActive  = 1 << 0
	flagWaterActive    = 1 << 1
)

var (
	// ErrEmergencyBlobShort reports a truncated record blob.
	ErrEmergencyBlobShort = errors.New("emergency record blob too short")
	// ErrEmergencyBadMagic reports a blob that is not an emergency record.
	ErrEmergencyBadMagic = errors.New("emergency record magic mismatch")
	// ErrEmergencyBadCRC reports a corrupted record blob.
	ErrEmergencyBadCRC = errors.New("emergency record checksum mismatch")
)

// Encode serializes the record into its fixed binary layout.
func (r EmergencyRecord) Encode() []byte {
	buf := make([]byte, emergencyBlobSize)
	binary.BigEndian.PutUint32(buf[0:4], emergencyMagic)
	binary.BigEndian.PutUint64(buf[4:12], uint64(r.OccurredAt.Unix()))
	buf[12] = byte(r.Reason)
	buf[13] = byte(r.Level)
	buf[14] = byte(r.ActiveRelays)
	var flags byte
	if r.HeatingActive {
		flags |= flagHeatingActive
	}
	if r.WaterActive {
		flags |= flagWaterActive
	}
	buf[15] = flags
	binary.BigEndian.PutUint16(buf[16:18], uint16(r.BoilerTemp))
	binary.BigEndian.PutUint16(buf[18:20], uint16(r.Pressure))
	binary.BigEndian.PutUint32(buf[20:24], crc32.ChecksumIEEE(buf[:20]))
	return buf
}

// DecodeEmergencyRecord parses and verifies a fixed-layout blob.
func DecodeEmergencyRecord(blob []byte) (EmergencyRecord, error) {
	if len(blob) < emergencyBlobSize {
		return EmergencyRecord{}, ErrEmergencyBlobShort
	}
	if binary.BigEndian.Uint32(blob[0:4]) != emergencyMagic {
		return EmergencyRecord{}, ErrEmergencyBadMagic
	}
	if binary.BigEndian.Uint32(blob[20:24]) != crc32.ChecksumIEEE(blob[:20]) {
		return EmergencyRecord{}, ErrEmergencyBadCRC
	}
	rec := EmergencyRecord{
		OccurredAt:    time.Unix(int64(binary.BigEndian.Uint64(blob[4:12])), 0).UTC(),
		Reason:        FailsafeReason(blob[12]),
		Level:         FailsafeLevel(blob[13]),
		ActiveRelays:  RelayMask(blob[14]),
		HeatingActive: blob[15]&flagHeatingActive != 0,
		WaterActive:   blob[15]&flagWaterActive != 0,
		BoilerTemp:    Temperature(binary.BigEndian.Uint16(blob[16:18])),
		Pressure:      Pressure(binary.BigEndian.Uint16(blob[18:20])),
	}
	rec.ReasonText = rec.Reason.String()
	rec.LevelText = rec.Level.String()
	return rec, nil
}
