package dal

import (
	"fmt"
	"math/rand/v2"
)

const (
	discriminatorSpace = 10000
	// Above this occupancy random probing degrades, so fall back to a
	// linear scan immediately.
	discriminatorDenseThreshold = 9900
	discriminatorRandomAttempts = 50
)

// pickDiscriminator chooses an unused 4-digit discriminator for a name
// given the set already taken. Returns false when all 10000 are taken.
// intn is injectable so tests can drive the random phase.
func pickDiscriminator(used map[string]struct{}, intn func(int) int) (string, bool) {
	if len(used) >= discriminatorSpace {
		return "", false
	}
	if intn == nil {
		intn = rand.IntN
	}

	if len(used) < discriminatorDenseThreshold {
		for i := 0; i < discriminatorRandomAttempts; i++ {
			candidate := fmt.Sprintf("%04d", intn(discriminatorSpace))
			if _, taken := used[candidate]; !taken {
				return candidate, true
			}
		}
	}

	for i := 0; i < discriminatorSpace; i++ {
		candidate := fmt.Sprintf("%04d", i)
		if _, taken := used[candidate]; !taken {
			return candidate, true
		}
	}
	return "", false
}
