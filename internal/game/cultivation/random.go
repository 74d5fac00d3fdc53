package cultivation

import "math/rand/v2"

// RandomSource — источник случайности для бросков испытаний.
// *rand.Rand из math/rand/v2 удовлетворяет интерфейсу (для воспроизводимых тестов).
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// runtimeSource draws from the math/rand/v2 global generator (ChaCha8, 53-bit floats).
type runtimeSource struct{}

func (runtimeSource) Float64() float64 { return rand.Float64() }

// DefaultRandom returns the production random source.
func DefaultRandom() RandomSource {
	return runtimeSource{}
}
