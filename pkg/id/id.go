package id

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// ReferencePrefix marks every reference this service generates.
const ReferencePrefix = "HJZ"

func Generate() string {
	return uuid.New().String()
}

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}

// Reference builds HJZ + yyyymmdd + unix seconds + four random digits.
func Reference(now time.Time) string {
	return fmt.Sprintf("%s%s%d%04d", ReferencePrefix, now.Format("20060102"), now.Unix(), randomDigits(10000))
}

// WalletReference is deterministic per phone so a retried registration finds
// the wallet a previous attempt created on the provider.
func WalletReference(phone string) string {
	return "WLT-" + phone
}

func randomDigits(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return time.Now().UnixNano() % max
	}
	return n.Int64()
}
