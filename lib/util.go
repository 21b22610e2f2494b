package lib

import (
	"encoding/hex"
	"time"
)

// BytesToString() returns the hex representation of bytes
func BytesToString(b []byte) string { return hex.EncodeToString(b) }

// StringToBytes() decodes a hex string to bytes, empty on failure
func StringToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// BytesToTruncatedString() returns a shortened hex representation for logging
func BytesToTruncatedString(b []byte) string {
	if len(b) > 10 {
		return hex.EncodeToString(b[:10])
	}
	return hex.EncodeToString(b)
}

// NewTimer() creates a new stopped and drained timer
func NewTimer() *time.Timer {
	t := time.NewTimer(0)
	if !t.Stop() {
		<-t.C
	}
	return t
}

// ResetTimer() safely stops, drains and resets a timer
func ResetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// StopTimer() safely stops and drains a timer
func StopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Uint64Percentage() returns 'percent' % of the amount
func Uint64Percentage(amount, percent uint64) uint64 {
	if percent >= 100 {
		return amount
	}
	return amount * percent / 100
}
