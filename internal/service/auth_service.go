package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"github.com/waspershola/hospitech-nexus-sub005/internal/config"
	"github.com/waspershola/hospitech-nexus-sub005/internal/domain"
	"github.com/waspershola/hospitech-nexus-sub005/internal/ports"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// FirebaseVerifier is satisfied by *auth.Client from the Firebase Admin SDK.
type FirebaseVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

type AuthService struct {
	Config       config.Config
	Staff        ports.StaffDirectory
	Logger       *slog.Logger
	FirebaseAuth FirebaseVerifier
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Staff        domain.Staff
	ExpiresAt    time.Time
}

type LoginInput struct {
	Email    string
	Password string
}

type GoogleLoginInput struct {
	IDToken string
}

type RefreshInput struct {
	RefreshToken string
}

func (s AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	staff, err := s.Staff.StaffByEmail(ctx, strings.TrimSpace(in.Email))
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if staff.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*staff.PasswordHash), []byte(in.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueTokens(staff)
}

// LoginWithGoogle signs in an existing staff member by a verified Firebase or Google ID token.
// Staff are provisioned by the property; unknown emails are rejected.
func (s AuthService) LoginWithGoogle(ctx context.Context, in GoogleLoginInput) (*AuthResult, error) {
	var email string
	switch {
	case s.FirebaseAuth != nil:
		tok, err := s.FirebaseAuth.VerifyIDToken(ctx, in.IDToken)
		if err != nil {
			return nil, fmt.Errorf("firebase token invalid: %w", ErrInvalidToken)
		}
		email, _ = tok.Claims["email"].(string)
	case s.Config.GoogleClientID != "":
		payload, err := idtoken.Validate(ctx, in.IDToken, s.Config.GoogleClientID)
		if err != nil {
			return nil, fmt.Errorf("google token invalid: %w", ErrInvalidToken)
		}
		email, _ = payload.Claims["email"].(string)
	default:
		return nil, errors.New("google sign-in is not configured")
	}
	if email == "" {
		return nil, ErrInvalidToken
	}

	staff, err := s.Staff.StaffByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return s.issueTokens(staff)
}

func (s AuthService) Refresh(ctx context.Context, in RefreshInput) (*AuthResult, error) {
	token, err := jwt.Parse(in.RefreshToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.Config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["token_type"] != "refresh" {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	tenantID, _ := claims["tenant_id"].(string)
	if sub == "" || tenantID == "" {
		return nil, ErrInvalidToken
	}

	staff, err := s.Staff.StaffByUser(ctx, tenantID, sub)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return s.issueTokens(staff)
}

func (s AuthService) issueTokens(staff *domain.Staff) (*AuthResult, error) {
	now := time.Now()
	accessExp := now.Add(s.Config.AccessTokenTTL)
	refreshExp := now.Add(s.Config.RefreshTokenTTL)

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        staff.UserID,
		"tenant_id":  staff.TenantID,
		"email":      staff.Email,
		"role":       string(staff.Role),
		"token_type": "access",
		"exp":        accessExp.Unix(),
		"iat":        now.Unix(),
	}).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return nil, err
	}

	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        staff.UserID,
		"tenant_id":  staff.TenantID,
		"token_type": "refresh",
		"exp":        refreshExp.Unix(),
		"iat":        now.Unix(),
	}).SignedString([]byte(s.Config.JWTSecret))
	if err != nil {
		return nil, err
	}

	out := *staff
	out.PasswordHash = nil
	out.ManagerPinHash = nil
	return &AuthResult{
		AccessToken:  access,
		RefreshToken: refresh,
		Staff:        out,
		ExpiresAt:    accessExp,
	}, nil
}
