package service

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	codeMin = 1000
	codeMax = 9999 // exclusive
)

// GenerateCode returns a uniformly random code in [1000, 9999) drawn from
// crypto/rand, so it always has four digits and no leading zero.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}
