package crypto

import (
	"errors"
	"fmt"
)

var (
	// ErrNotInvertible is returned when gcd(a, n) != 1.
	ErrNotInvertible = errors.New("not invertible")

	// ErrNoCoprime is returned when no coprime exists below the search bound.
	ErrNoCoprime = errors.New("no coprime found")
)

// ModPow computes base^exponent mod modulus by square-and-multiply.
// Products are taken in 64 bits so 32-bit operands never overflow.
// modulus must be positive.
func ModPow(base, exponent, modulus uint32) uint32 {
	if modulus == 1 {
		return 0
	}

	m := uint64(modulus)
	b := uint64(base) % m
	result := uint64(1)

	for exponent > 0 {
		if exponent&1 == 1 {
			result = result * b % m
		}
		b = b * b % m
		exponent >>= 1
	}

	return uint32(result)
}

// ExtendedEuclid returns gcd(a, b) and Bezout coefficients u, v with a*u + b*v = gcd.
func ExtendedEuclid(a, b uint32) (gcd uint32, u, v int64) {
	oldR, r := int64(a), int64(b)
	oldU, curU := int64(1), int64(0)
	oldV, curV := int64(0), int64(1)

	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldU, curU = curU, oldU-q*curU
		oldV, curV = curV, oldV-q*curV
	}

	return uint32(oldR), oldU, oldV
}

// ModularInverse returns x in [0, n) with a*x ≡ 1 (mod n).
func ModularInverse(a, n uint32) (uint32, error) {
	if n == 0 {
		return 0, fmt.Errorf("modular inverse of %d mod 0: %w", a, ErrNotInvertible)
	}

	gcd, u, _ := ExtendedEuclid(a%n, n)
	if gcd != 1 {
		return 0, fmt.Errorf("gcd(%d, %d) = %d: %w", a, n, gcd, ErrNotInvertible)
	}

	u %= int64(n)
	if u < 0 {
		u += int64(n)
	}

	return uint32(u), nil
}

// FindCoprime scans upward from 2 for the first integer coprime to n.
func FindCoprime(n uint32) (uint32, error) {
	for i := uint32(2); i < n; i++ {
		if gcd, _, _ := ExtendedEuclid(i, n); gcd == 1 {
			return i, nil
		}
	}
	return 0, fmt.Errorf("coprime of %d: %w", n, ErrNoCoprime)
}
