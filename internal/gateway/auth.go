package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nearprop/chat/internal/models"
)

type otpResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	User   *struct {
		ID    int64    `json:"id"`
		Name  string   `json:"name"`
		Roles []string `json:"roles"`
	} `json:"user"`
}

// RequestOTP asks the backend to text a one-time code to a mobile number.
func (c *Client) RequestOTP(ctx context.Context, mobile string) error {
	body := map[string]string{"mobileNumber": mobile}
	if err := c.do(ctx, nil, http.MethodPost, "/auth/send-otp", body, nil); err != nil {
		return fmt.Errorf("request otp: %w", err)
	}
	return nil
}

// VerifyOTP exchanges a one-time code for a session. The caller persists it.
func (c *Client) VerifyOTP(ctx context.Context, mobile, code string) (*models.Session, error) {
	body := map[string]string{"mobileNumber": mobile, "otp": code}
	var resp otpResponse
	if err := c.do(ctx, nil, http.MethodPost, "/auth/verify-otp", body, &resp); err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	if resp.Token == "" {
		return nil, errors.New("verify otp: backend returned no token")
	}

	sess := &models.Session{
		Token:       resp.Token,
		UserID:      resp.UserID,
		Role:        resp.Role,
		DisplayName: resp.Name,
	}
	if resp.User != nil {
		if sess.UserID == 0 {
			sess.UserID = resp.User.ID
		}
		if sess.DisplayName == "" {
			sess.DisplayName = resp.User.Name
		}
		if sess.Role == "" && len(resp.User.Roles) > 0 {
			sess.Role = resp.User.Roles[0]
		}
	}
	return sess, nil
}
