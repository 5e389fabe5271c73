package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// TokenExpiry reads the exp claim of a bearer token. The signature is not
// verified; the token is only inspected to know when to log in again.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeDSCredentials, "malformed Deep Search token")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeDSCredentials, "malformed Deep Search token expiry")
	}
	if exp == nil {
		return time.Time{}, errors.New(errors.ErrCodeDSCredentials, "Deep Search token has no expiry")
	}
	return exp.Time, nil
}
