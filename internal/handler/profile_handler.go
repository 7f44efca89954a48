package handler

import (
	"net/http"

	"adcert/internal/middleware"
	"adcert/internal/model"
	"adcert/internal/service"
	"adcert/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProfileHandler struct {
	profileService service.ProfileService
	tokenMaxAge    int
	secureCookies  bool
}

// NewProfileHandler sets up the routing dependencies for account endpoints.
// tokenMaxAge is the cookie lifetime in seconds.
func NewProfileHandler(profileService service.ProfileService, tokenMaxAge int, secureCookies bool) *ProfileHandler {
	return &ProfileHandler{profileService: profileService, tokenMaxAge: tokenMaxAge, secureCookies: secureCookies}
}

func (h *ProfileHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Public routes
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)
	router.POST("/logout", h.Logout)

	router.GET("/me", middleware.Authenticated(), h.GetMe)

	router.POST("/api/profiles", middleware.RequireRole(model.RoleAdmin), h.CreateProfile)
}

// Register creates an advertiser account
// @Summary      Register advertiser
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration Payload"
// @Success      201      {object}  response.Response{data=service.ProfileResponse}
// @Failure      400      {object}  response.Response
// @Router       /register [post]
func (h *ProfileHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	profile, err := h.profileService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, profile))
}

// CreateProfile lets an administrator add reviewer or admin accounts
// @Summary      Create profile
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateProfileRequest  true  "Profile Payload"
// @Success      201      {object}  response.Response{data=service.ProfileResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/profiles [post]
func (h *ProfileHandler) CreateProfile(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	var req service.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	profile, err := h.profileService.CreateProfile(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, profile))
}

// Login handles POST /login to authenticate and return a JWT token
// @Summary      Login
// @Description  Authenticates by email and password, returning a JWT and setting the access_token cookie
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.TokenResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Router       /login [post]
func (h *ProfileHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}

	tokenRes, err := h.profileService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	middleware.SetTokenCookie(c, tokenRes.Token, h.tokenMaxAge, h.secureCookies)

	c.JSON(http.StatusOK, response.Success(http.StatusOK, tokenRes))
}

// Logout clears the auth cookie
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /logout [post]
func (h *ProfileHandler) Logout(c *gin.Context) {
	middleware.ClearTokenCookie(c, h.secureCookies)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Logged out"))
}

// GetMe returns the authenticated profile
// @Summary      Get current profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.ProfileResponse}
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /me [get]
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, ok := actorID(c)
	if !ok {
		return
	}

	profile, err := h.profileService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, profile))
}
