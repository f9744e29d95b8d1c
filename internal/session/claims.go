package session

import (
	"fmt"
	"strconv"

	"nearprop/chat/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

// FromToken builds a Session from an already issued token, for logins that
// hand over a raw JWT instead of going through the OTP exchange.
func FromToken(token, displayName string) (*models.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	sess := &models.Session{Token: token, DisplayName: displayName}

	for _, key := range []string{"userId", "user_id", "id", "sub"} {
		if id, ok := numericClaim(claims[key]); ok {
			sess.UserID = id
			break
		}
	}
	if sess.UserID == 0 {
		return nil, fmt.Errorf("token carries no numeric user id")
	}

	if role, ok := claims["role"].(string); ok {
		sess.Role = role
	} else if roles, ok := claims["roles"].([]interface{}); ok && len(roles) > 0 {
		sess.Role, _ = roles[0].(string)
	}

	if sess.DisplayName == "" {
		sess.DisplayName, _ = claims["name"].(string)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		sess.ExpiresAt = exp.Time
	}
	return sess, nil
}

func numericClaim(v interface{}) (int64, bool) {
	switch id := v.(type) {
	case float64:
		return int64(id), id != 0
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}
