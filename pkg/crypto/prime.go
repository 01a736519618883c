package crypto

import "math"

// WitnessCount returns how many Miller-Rabin witnesses keep the false-prime
// probability below errorBound. Each witness lies with probability at most 1/4.
func WitnessCount(errorBound float64) int {
	if errorBound >= 1 || errorBound <= 0 || math.IsNaN(errorBound) {
		return 1
	}
	n := int(math.Ceil(math.Log(errorBound) / math.Log(0.25)))
	if n < 1 {
		n = 1
	}
	return n
}

// IsProbablePrime runs the Miller-Rabin test on n with witnessCount random bases
// drawn from [2, n-2].
func IsProbablePrime(r Random, n uint32, witnessCount int) bool {
	switch {
	case n < 2:
		return false
	case n < 4:
		return true
	case n%2 == 0:
		return false
	}

	// n - 1 = 2^s * m, m odd
	m := n - 1
	s := 0
	for m%2 == 0 {
		m /= 2
		s++
	}

	for i := 0; i < witnessCount; i++ {
		a := 2 + r.Uint32n(n-3)
		if !millerRabinPass(n, m, s, a) {
			return false
		}
	}

	return true
}

// millerRabinPass reports whether base a fails to prove n composite.
func millerRabinPass(n, m uint32, s int, a uint32) bool {
	x := ModPow(a, m, n)
	if x == 1 || x == n-1 {
		return true
	}
	for j := 1; j < s; j++ {
		x = uint32(uint64(x) * uint64(x) % uint64(n))
		if x == n-1 {
			return true
		}
	}
	return false
}

// RandomCandidate returns a random odd number with exactly bitLength significant bits.
func RandomCandidate(r Random, bitLength int) uint32 {
	if bitLength < 2 || bitLength > 32 {
		panic("crypto: bit length must be in [2, 32]")
	}
	top := uint32(1) << (bitLength - 1)
	v := r.Uint32()
	if bitLength < 32 {
		v &= top<<1 - 1
	}
	return v | top | 1
}

// GeneratePrime samples candidates until one passes Miller-Rabin with enough
// witnesses to keep the false-prime probability below errorBound.
func GeneratePrime(r Random, bitLength int, errorBound float64) uint32 {
	witnesses := WitnessCount(errorBound)
	for {
		candidate := RandomCandidate(r, bitLength)
		if IsProbablePrime(r, candidate, witnesses) {
			return candidate
		}
	}
}
