// ABOUTME: Client-side inspection of the gateway JWT
// ABOUTME: Reads the exp claim without verifying the signature; the gateway holds the secret

package gateway

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// errTokenExpired marks a configured token whose exp claim has passed.
var errTokenExpired = errors.New("gateway token expired")

// checkToken returns errTokenExpired when tokenString carries an exp claim in
// the past. Opaque (non-JWT) tokens and tokens without exp pass.
func checkToken(tokenString string, now time.Time) error {
	if tokenString == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("reading exp claim: %w", err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return fmt.Errorf("%w at %s", errTokenExpired, exp.Time.Format(time.RFC3339))
	}
	return nil
}
