package service

import (
	"context"
	"errors"
	"exam_platform_backend/internal/config"
	"exam_platform_backend/internal/model"
	"exam_platform_backend/internal/repository"
	"exam_platform_backend/internal/util"
	"exam_platform_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.Config
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Cfg:      cfg,
	}
}

type LoginReq struct {
	Identifier string `json:"identifier" binding:"required"` // email or phone
	Password   string `json:"password" binding:"required"`
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	user, err := s.UserRepo.WithContext(ctx).FindByIdentifier(strings.TrimSpace(identifier))
	if errors.Is(err, util.ErrUserNotFound) {
		return nil, util.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, util.ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, util.ErrAccountDisabled
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

func (s *AuthService) Profile(ctx context.Context, userID uint) (*model.User, error) {
	return s.UserRepo.WithContext(ctx).FindByID(userID)
}

// EnsureBootstrapTeacher creates the configured teacher account when the
// database has no teacher yet.
func (s *AuthService) EnsureBootstrapTeacher(ctx context.Context) error {
	boot := s.Cfg.Bootstrap
	if boot.TeacherEmail == "" || boot.TeacherPassword == "" {
		return nil
	}

	repo := s.UserRepo.WithContext(ctx)
	count, err := repo.CountByRole(model.Teacher)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	taken, err := repo.EmailTaken(boot.TeacherEmail, 0)
	if err != nil || taken {
		return err
	}

	hashed, err := hashPassword(boot.TeacherPassword)
	if err != nil {
		return err
	}
	name := boot.TeacherName
	if name == "" {
		name = "Teacher"
	}
	email := boot.TeacherEmail
	teacher := &model.User{
		Name:     name,
		Email:    &email,
		Password: hashed,
		Role:     model.Teacher,
		Language: s.Cfg.I18n.DefaultLanguage,
	}
	if err := repo.Create(teacher); err != nil {
		return err
	}
	logger.Log.Info("Bootstrap teacher account created", zap.Uint("userId", teacher.ID), zap.String("email", email))
	return nil
}
