package services

import (
	"errors"
	"strings"
	"time"

	"task-planner/backend/internal/config"
	"task-planner/backend/internal/models"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// GoogleIdentity is the verified payload of a Google sign-in: the
// subject and profile claims extracted from an ID token the edge has
// already validated against Google's certificates.
type GoogleIdentity struct {
	Subject     string `json:"sub"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
	PhotoURL    string `json:"picture"`
}

type AuthService interface {
	LoginUser(db *gorm.DB, email, password string) (*models.User, error)
	LoginWithGoogle(db *gorm.DB, identity GoogleIdentity) (*models.User, error)
	GenerateToken(db *gorm.DB, userID uuid.UUID) (string, string, error)
	RefreshToken(db *gorm.DB, refreshToken string) (string, string, int64, error)
	RevokeToken(db *gorm.DB, refreshToken string) error
	AccessTokenTTL() time.Duration
}

type AuthServiceImpl struct {
	jwtSecret       string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

func NewAuthService(cfg config.AuthConfig) *AuthServiceImpl {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default_secret"
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}

	return &AuthServiceImpl{
		jwtSecret:       cfg.JWTSecret,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
	}
}

func (s *AuthServiceImpl) AccessTokenTTL() time.Duration {
	return s.accessTokenTTL
}

func VerifyPassword(hashedPassword, plainPassword string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(plainPassword))
	return err == nil
}

func (s *AuthServiceImpl) LoginUser(db *gorm.DB, email, password string) (*models.User, error) {
	var user models.User
	if err := db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	if !VerifyPassword(user.Password, password) {
		return nil, gorm.ErrInvalidData
	}
	return &user, nil
}

// LoginWithGoogle finds the user matching the Google subject, falls
// back to matching by email (linking the account), and provisions a
// new user when neither exists.
func (s *AuthServiceImpl) LoginWithGoogle(db *gorm.DB, identity GoogleIdentity) (*models.User, error) {
	if identity.Subject == "" || identity.Email == "" {
		return nil, ErrInvalidArgument
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))

	var user models.User
	err := db.Where("google_id = ?", identity.Subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = db.Where("email = ?", email).First(&user).Error
	if err == nil {
		user.GoogleID = identity.Subject
		if user.DisplayName == "" {
			user.DisplayName = identity.DisplayName
		}
		if user.PhotoURL == "" {
			user.PhotoURL = identity.PhotoURL
		}
		user.UpdatedAt = time.Now()
		if err := db.Save(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	user = models.User{
		ID:          uuid.Must(uuid.NewV4()),
		Email:       email,
		Password:    "",
		DisplayName: identity.DisplayName,
		PhotoURL:    identity.PhotoURL,
		GoogleID:    identity.Subject,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *AuthServiceImpl) GenerateToken(db *gorm.DB, userID uuid.UUID) (string, string, error) {
	accessTokenClaims := jwt.MapClaims{
		"user_id": userID.String(),
		"iss":     "task-planner-backend",
		"exp":     time.Now().Add(s.accessTokenTTL).Unix(),
	}
	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessTokenClaims)
	accessTokenString, err := accessToken.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", "", err
	}

	refreshTokenUUID, err := uuid.NewV4()
	if err != nil {
		return "", "", err
	}

	token := models.Token{
		ID:           uuid.Must(uuid.NewV4()),
		UserId:       userID,
		RefreshToken: refreshTokenUUID,
		ExpiresAt:    time.Now().Add(s.refreshTokenTTL),
	}
	if err := db.Create(&token).Error; err != nil {
		return "", "", err
	}

	return accessTokenString, refreshTokenUUID.String(), nil
}

func (s *AuthServiceImpl) RefreshToken(db *gorm.DB, refreshToken string) (string, string, int64, error) {
	var token models.Token
	err := db.Where("refresh_token = ? AND expires_at > ?", refreshToken, time.Now()).First(&token).Error
	if err != nil {
		return "", "", 0, err
	}

	accessToken, newRefreshToken, err := s.GenerateToken(db, token.UserId)
	if err != nil {
		return "", "", 0, err
	}
	expiresIn := int64(s.accessTokenTTL.Seconds())

	db.Delete(&token)

	return accessToken, newRefreshToken, expiresIn, nil
}

func (s *AuthServiceImpl) RevokeToken(db *gorm.DB, refreshToken string) error {
	return db.Where("refresh_token = ?", refreshToken).Delete(&models.Token{}).Error
}
