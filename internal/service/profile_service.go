package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/logging"
	"adcert/internal/model"
	"adcert/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email" validate:"required,email"`
	Password    string `json:"password" binding:"required,min=6" validate:"required,min=6"`
	FullName    string `json:"full_name" binding:"required" validate:"required,max=255"`
	CompanyName string `json:"company_name" validate:"max=255"`
	Phone       string `json:"phone" validate:"max=20"`
}

// CreateProfileRequest is used by administrators to add staff accounts.
type CreateProfileRequest struct {
	RegisterRequest
	Role string `json:"role" binding:"required" validate:"required,oneof=advertiser reviewer admin"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// DTO for returning a Profile without exposing the password hash
type ProfileResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
}

// ProfileService covers accounts and authentication for every role.
type ProfileService interface {
	Register(ctx context.Context, req RegisterRequest) (*ProfileResponse, error)
	CreateProfile(ctx context.Context, actorID string, req CreateProfileRequest) (*ProfileResponse, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	GetProfile(ctx context.Context, id string) (*ProfileResponse, error)
	// SeedAdmin creates an administrator when email is not yet registered.
	SeedAdmin(ctx context.Context, email, password string) error
}

type profileService struct {
	profiles  repository.ProfileRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	validate  *validator.Validate
	secret    []byte
	tokenTTL  time.Duration
	now       Clock
}

func NewProfileService(
	profiles repository.ProfileRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	jwtSecret string,
	tokenTTL time.Duration,
	clock Clock,
) ProfileService {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &profileService{
		profiles:  profiles,
		auditRepo: auditRepo,
		txManager: txManager,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		secret:    []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       clockOrNow(clock),
	}
}

func (s *profileService) Register(ctx context.Context, req RegisterRequest) (*ProfileResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, "invalid registration")
	}
	return s.create(ctx, nil, req, model.RoleAdvertiser)
}

func (s *profileService) CreateProfile(ctx context.Context, actorID string, req CreateProfileRequest) (*ProfileResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Unauthorized("only administrators may create profiles")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err, "invalid profile")
	}
	return s.create(ctx, &actor.ID, req.RegisterRequest, model.Role(req.Role))
}

func (s *profileService) create(ctx context.Context, createdBy *uuid.UUID, req RegisterRequest, role model.Role) (*ProfileResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := s.profiles.GetByEmail(ctx, email); err == nil {
		return nil, apperr.InvalidInput("email already registered")
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	profile := &model.Profile{
		Email:       email,
		FullName:    strings.TrimSpace(req.FullName),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Phone:       req.Phone,
		Password:    string(hashed),
		Role:        role,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.profiles.Create(txCtx, profile); err != nil {
			if repository.IsUniqueViolation(err) {
				return apperr.InvalidInput("email already registered")
			}
			return fmt.Errorf("failed to create profile: %w", err)
		}
		actor := createdBy
		if actor == nil {
			actor = &profile.ID
		}
		return writeAudit(txCtx, s.auditRepo, actor, model.ActionRegisterProfile, profile.ID.String(), profile.Email, map[string]interface{}{
			"role": role,
		})
	})
	if err != nil {
		return nil, err
	}

	return toProfileResponse(profile), nil
}

func (s *profileService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	invalid := apperr.New(apperr.KindUnauthenticated, "invalid email or password")

	profile, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(req.Password)); err != nil {
		return nil, invalid
	}

	expiresAt := s.now().Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  profile.ID.String(),
		"role": string(profile.Role),
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &TokenResponse{Token: signed, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil
}

func (s *profileService) GetProfile(ctx context.Context, id string) (*ProfileResponse, error) {
	profile, err := resolveActor(ctx, s.profiles, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthorized {
			return nil, apperr.NotFound("profile not found")
		}
		return nil, err
	}
	return toProfileResponse(profile), nil
}

func (s *profileService) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	existing, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err == nil {
		if existing.Role != model.RoleAdmin {
			logging.Warn(ctx, "bootstrap admin email belongs to a non-admin profile", slog.String("email", existing.Email))
		}
		return nil
	}
	if !repository.IsNotFound(err) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	_, err = s.create(ctx, nil, RegisterRequest{
		Email:    email,
		Password: password,
		FullName: "Administrator",
	}, model.RoleAdmin)
	if err != nil && !errors.Is(err, apperr.ErrInvalidInput) {
		return err
	}
	logging.Info(ctx, "bootstrap admin ensured", slog.String("email", email))
	return nil
}

func toProfileResponse(p *model.Profile) *ProfileResponse {
	return &ProfileResponse{
		ID:          p.ID.String(),
		Email:       p.Email,
		FullName:    p.FullName,
		CompanyName: p.CompanyName,
		Phone:       p.Phone,
		Role:        string(p.Role),
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}
