// Package cohort decides rollout membership for a repository
package cohort

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
)

// Strategy selects how membership is computed
type Strategy string

const (
	// Hash buckets repositories by a stable hash of feature and repository id
	Hash Strategy = "hash"
	// Random draws on every evaluation
	Random Strategy = "random"
)

// Valid reports whether s is a known strategy
func (s Strategy) Valid() bool { return s == Hash || s == Random }

// Bucket maps feature and repository into [0,100)
// the same inputs give the same bucket in every process
func Bucket(feature string, repoID int64) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(strconv.FormatInt(repoID, 10)))
	return int(h.Sum32() % 100)
}

// draw is swapped in tests
var draw = func() int { return rand.IntN(100) }

// Member reports whether repoID is inside the rollout at percentage
func Member(s Strategy, feature string, repoID int64, percentage int) bool {
	switch {
	case percentage <= 0:
		return false
	case percentage >= 100:
		return true
	}
	if s == Random {
		return draw() < percentage
	}
	return Bucket(feature, repoID) < percentage
}
