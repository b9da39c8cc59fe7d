package allocation

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"

	"github.com/kingrea/paneler/internal/dataset"
)

// DeriveSeed mixes a top-level seed with labels such as ("panel", 3) into an
// independent sub-seed. The same inputs always give the same result.
func DeriveSeed(seed int64, parts ...any) int64 {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(seed, 10)))
	for _, part := range parts {
		h.Write([]byte{0})
		h.Write([]byte(dataset.Canonical(part)))
	}
	return int64(h.Sum64())
}

// NewRand returns a generator owned by one call site.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}
