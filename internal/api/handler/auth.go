package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/iris_server/internal/api/middleware"
	"github.com/qs3c/iris_server/internal/model/dto"
	"github.com/qs3c/iris_server/internal/pkg/oauth"
	"github.com/qs3c/iris_server/internal/pkg/response"
	"github.com/qs3c/iris_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
	states      *oauth.StateStore
}

func NewAuthHandler(authService *service.AuthService, states *oauth.StateStore) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		states:      states,
	}
}

// Register 用户注册
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailExists):
			response.ParamError(c, err.Error())
		default:
			middleware.Logger(c).WithError(err).Error("register failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "注册成功", resp)
}

// Login 用户登录
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.AuthError(c, err.Error())
		default:
			middleware.Logger(c).WithError(err).Error("login failed")
			response.ServerError(c, "")
		}
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// GoogleAuth 跳转 Google 授权页，redirect 为登录完成后前端的回跳地址
// GET /api/v1/auth/google
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	state, err := h.states.GenerateState(c.Request.Context(), c.Query("redirect"))
	if err != nil {
		middleware.Logger(c).WithError(err).Error("failed to generate oauth state")
		response.ServerError(c, "")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.authService.GetGoogleAuthURL(state))
}

// GoogleCallback Google 授权回调
// GET /api/v1/auth/google/callback
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		response.ParamError(c, "缺少授权码")
		return
	}

	redirect, err := h.states.ConsumeState(c.Request.Context(), c.Query("state"))
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidState) {
			response.ParamError(c, "登录状态已失效，请重新登录")
			return
		}
		response.ServerError(c, "")
		return
	}

	resp, err := h.authService.GoogleCallback(c.Request.Context(), code)
	if err != nil {
		middleware.Logger(c).WithError(err).Warn("google login failed")
		response.AuthError(c, "Google 登录失败")
		return
	}

	// 有回跳地址时把 token 放在 fragment 里交给前端
	if target, err := url.Parse(redirect); err == nil && redirect != "" {
		target.Fragment = "token=" + url.QueryEscape(resp.Token)
		c.Redirect(http.StatusFound, target.String())
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

// Me 当前登录用户
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, user)
}
