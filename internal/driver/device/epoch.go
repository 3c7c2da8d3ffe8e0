// internal/driver/device/epoch.go
package device

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// EpochLength is the number of blocks a DAG stays valid for before the
// backends regenerate it.
const EpochLength = 30000

// EpochOf returns the epoch a block height falls into.
func EpochOf(height uint64) int32 {
	return int32(height / EpochLength)
}

// SeedHash returns the DAG seed for an epoch: keccak256 applied to a
// zero hash once per elapsed epoch.
func SeedHash(epoch int32) common.Hash {
	var seed common.Hash
	if epoch <= 0 {
		return seed
	}
	h := sha3.NewLegacyKeccak256()
	for i := int32(0); i < epoch; i++ {
		h.Reset()
		h.Write(seed[:])
		h.Sum(seed[:0])
	}
	return seed
}
