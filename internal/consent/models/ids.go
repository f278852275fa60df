package models

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// NewRecordID returns record_<unix millis>_<16 hex>.
func NewRecordID(now time.Time) string {
	return newID("record", now, 8)
}

// NewRequestID returns req_<unix millis>_<8 hex>.
func NewRequestID(now time.Time) string {
	return newID("req", now, 4)
}

// NewGrantID returns grant_<unix millis>_<8 hex>.
func NewGrantID(now time.Time) string {
	return newID("grant", now, 4)
}

func newID(prefix string, now time.Time, randBytes int) string {
	b := make([]byte, randBytes)
	// crypto/rand.Read never returns an error on supported platforms
	_, _ = rand.Read(b)
	return prefix + "_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + hex.EncodeToString(b)
}
