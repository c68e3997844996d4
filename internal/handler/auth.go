package handler

import (
	"net/http" // HTTP status codes and primitives
	"time"     // token expiry in responses

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/court-booking/internal/booking"    // registration and credential checks
	"github.com/iliyamo/court-booking/internal/config"     // token settings
	"github.com/iliyamo/court-booking/internal/middleware" // authenticated caller accessors
	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/utils" // token issuing
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg     config.AuthConfig
	Service *booking.Service
}

func NewAuthHandler(cfg config.AuthConfig, svc *booking.Service) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Service: svc}
}

// ----- DTOs -----

type registerReq struct {
	Account  string `json:"account"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"` // member | instructor (student/teacher accepted)
	Phone    string `json:"phone"`
}
type loginReq struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	Account     string    `json:"account"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Phone       string    `json:"phone,omitempty"`
	CreditScore int       `json:"credit_score"`
	CreatedAt   time.Time `json:"created_at"`
}
type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

func toUserPart(u *model.User) userPart {
	return userPart{
		Account:     u.Account,
		Name:        u.Name,
		Role:        string(u.Role),
		Phone:       u.Phone,
		CreditScore: u.CreditScore,
		CreatedAt:   u.CreatedAt,
	}
}

// issue signs an access token for u and writes the auth response.
func (h *AuthHandler) issue(c echo.Context, status int, u *model.User) error {
	at, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.Account, string(u.Role), h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(status, authResp{
		User:   toUserPart(u),
		Access: tokenPart{Token: at.Token, Expires: at.Exp},
	})
}

// Register: create the account and return a token immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.Service.Register(c.Request().Context(), booking.RegisterRequest{
		Account:  req.Account,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
		Phone:    req.Phone,
	})
	if err != nil {
		return fail(c, err)
	}
	return h.issue(c, http.StatusCreated, u)
}

// Login: verify credentials and return a token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	u, err := h.Service.Authenticate(c.Request().Context(), req.Account, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return h.issue(c, http.StatusOK, u)
}

// Me returns the caller's profile with the current credit score.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := h.Service.Profile(c.Request().Context(), middleware.Account(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, toUserPart(u))
}
