// Package icrypto builds the associated data bound into sealed records.
package icrypto

import (
	"encoding/binary"
)

const aadRecord = "RECORD"

// AADRecord binds a sealed record to its location and envelope version, so
// a ciphertext copied to another record fails to open.
func AADRecord(ns, recordType, recordID string, ver int) []byte {
	return buildAAD(aadRecord, ns, recordType, recordID, ver)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
