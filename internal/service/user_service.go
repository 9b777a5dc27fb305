package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TokenTTL bounds how long an issued access token stays valid
const TokenTTL = 24 * time.Hour

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// DTOs for Request validation
type CreateUserRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Phone        string `json:"phone"`
	Password     string `json:"password" binding:"required,min=6"`
	Role         string `json:"role" binding:"required"`
	EmployeeCode string `json:"employee_code"`
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type LoginUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Role         string    `json:"role"`
	EmployeeCode string    `json:"employee_code,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id string) (*UserResponse, error)
	AssignRole(ctx context.Context, id string, req AssignRoleRequest) (*UserResponse, error)
}

type userService struct {
	tx     repository.TransactionManager
	repo   repository.UserRepository
	roles  repository.RoleRepository
	audit  AuditService
	secret []byte
}

// NewUserService returns a new instance of UserService
func NewUserService(
	tx repository.TransactionManager,
	repo repository.UserRepository,
	roles repository.RoleRepository,
	audit AuditService,
	jwtSecret string,
) UserService {
	return &userService{tx: tx, repo: repo, roles: roles, audit: audit, secret: []byte(jwtSecret)}
}

// Helper: parse model to standard json API response
func mapToResponse(user *model.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      user.RoleName(),
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: user.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if user.EmployeeCode != nil {
		resp.EmployeeCode = *user.EmployeeCode
	}
	return resp
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !emailRegex.MatchString(email) {
		return nil, apperror.Validation("invalid email format")
	}

	role, err := s.roles.FindByName(ctx, req.Role)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Validation("unknown role '%s'", req.Role)
		}
		return nil, storeErr(err, "failed to resolve role")
	}

	// Double check username/email uniqueness via repo directly
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperror.DuplicateKey("username already exists")
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, apperror.DuplicateKey("email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err, "failed to hash password")
	}

	user := &model.User{
		Username: req.Username,
		Email:    email,
		Phone:    req.Phone,
		Password: string(hashedPassword),
		RoleID:   &role.ID,
		Role:     role,
	}
	if code := strings.TrimSpace(req.EmployeeCode); code != "" {
		user.EmployeeCode = &code
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, user); err != nil {
			return storeErr(err, "failed to create user")
		}
		return s.audit.Record(txCtx, model.ActionCreateUser, user.ID.String(), user.Username, map[string]string{"role": role.Name})
	})
	if err != nil {
		return nil, err
	}

	return mapToResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, apperror.Validation("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperror.Validation("invalid email or password")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.RoleName(),
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(TokenTTL)),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate token")
	}

	return &TokenResponse{Token: tokenString}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseUUID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	return mapToResponse(user), nil
}

// AssignRole moves the user to another role; permissions follow the role immediately
func (s *userService) AssignRole(ctx context.Context, id string, req AssignRoleRequest) (*UserResponse, error) {
	userID, err := parseUUID(id, "user")
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	role, err := s.roles.FindByName(ctx, req.Role)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Validation("unknown role '%s'", req.Role)
		}
		return nil, storeErr(err, "failed to resolve role")
	}

	previous := user.RoleName()
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.UpdateRole(txCtx, user.ID, role.ID); err != nil {
			return storeErr(err, "failed to assign role")
		}
		return s.audit.Record(txCtx, model.ActionAssignUserRole, user.ID.String(), user.Username, map[string]string{
			"from": previous,
			"to":   role.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	user.RoleID = &role.ID
	user.Role = role
	return mapToResponse(user), nil
}
