package businessflow

import (
	"context"
	"crypto/subtle"
	"log"
	"strings"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/config"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthFlow represents the operator authentication flow used by handlers
type AdminAuthFlow interface {
	Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error)
}

// AdminAuthFlowImpl checks the configured operator credentials and issues a JWT
type AdminAuthFlowImpl struct {
	cfg          config.AdminConfig
	tokenService services.TokenService
	recorder
}

func NewAdminAuthFlow(cfg config.AdminConfig, tokenService services.TokenService, auditRepo repository.AuditLogRepository, logger *log.Logger) AdminAuthFlow {
	return &AdminAuthFlowImpl{
		cfg:          cfg,
		tokenService: tokenService,
		recorder: recorder{
			auditRepo: auditRepo,
			logger:    loggerOrDefault(logger, "admin"),
		},
	}
}

func (af *AdminAuthFlowImpl) Login(ctx context.Context, req *dto.AdminLoginRequest, metadata *ClientMetadata) (*dto.AdminLoginResponse, error) {
	if req == nil || len(req.Username) == 0 || len(req.Password) == 0 {
		return nil, NewBusinessError("ADMIN_LOGIN_VALIDATION_FAILED", "Admin login validation failed", ErrInvalidCredentials)
	}
	if af.cfg.Username == "" || af.cfg.PasswordHash == "" {
		return nil, NewBusinessError("ADMIN_NOT_CONFIGURED", "Admin account is not configured", ErrAdminNotConfigured)
	}

	if metadata != nil {
		metadata.SetActor(req.Username)
	}

	username := strings.TrimSpace(req.Username)
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(af.cfg.Username)) == 1
	// The password is checked even when the username is wrong
	passErr := bcrypt.CompareHashAndPassword([]byte(af.cfg.PasswordHash), []byte(req.Password))
	if !userOK || passErr != nil {
		af.audit(ctx, nil, models.AuditActionAdminLoginFailed, "Admin login failed", false, utils.ToPtr("invalid credentials"), metadata)
		return nil, NewBusinessError("ADMIN_INVALID_CREDENTIALS", "Invalid username or password", ErrInvalidCredentials)
	}

	accessToken, expiresAt, err := af.tokenService.GenerateAdminToken(af.cfg.Username)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate token", err)
	}

	af.audit(ctx, nil, models.AuditActionAdminLoginSuccess, "Admin logged in", true, nil, metadata)

	return &dto.AdminLoginResponse{
		Username: af.cfg.Username,
		Session:  ToAdminSessionDTO(accessToken, expiresAt),
	}, nil
}

// ToAdminSessionDTO builds the session block of a login response
func ToAdminSessionDTO(accessToken string, expiresAt time.Time) dto.AdminSessionDTO {
	expiresIn := int(time.Until(expiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return dto.AdminSessionDTO{
		AccessToken: accessToken,
		ExpiresIn:   expiresIn,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}
}
