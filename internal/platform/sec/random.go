// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
)

// GenerateSecureToken returns n random bytes encoded as unpadded base64url.
func GenerateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec_random_token_failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateNumericCode returns a uniformly distributed decimal code in [low, high].
func GenerateNumericCode(low, high int64) (string, error) {
	if high < low {
		return "", fmt.Errorf("sec_random_code_failed: empty range [%d, %d]", low, high)
	}

	n, err := rand.Int(rand.Reader, big.NewInt(high-low+1))
	if err != nil {
		return "", fmt.Errorf("sec_random_code_failed: %w", err)
	}
	return strconv.FormatInt(low+n.Int64(), 10), nil
}
