package auth

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// OfflineUUID is the identity a backend in offline mode assigns to name
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30 // version 3
	sum[8] = sum[8]&0x3f | 0x80 // RFC 4122 variant
	return uuid.UUID(sum)
}
