package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	Auth   *services.AuthService
	Events *services.EventService
}

func NewAuthHandler(auth *services.AuthService, events *services.EventService) *AuthHandler {
	return &AuthHandler{Auth: auth, Events: events}
}

type signUpRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	InvitationCode string `json:"invitationCode"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type updateUserRequest struct {
	Password  *string `json:"password" validate:"omitempty,min=8"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req signUpRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	session, err := h.Auth.SignUp(c.Context(), services.SignUpInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		InvitationCode: req.InvitationCode,
	})
	if err != nil {
		logger.Warn("signup_failed", map[string]interface{}{
			"email":          req.Email,
			"ip":             c.IP(),
			"has_invitation": req.InvitationCode != "",
			"error":          err.Error(),
		})
		return serviceError(c, err, "failed creating account")
	}

	h.track(c, session, services.EventUserSignedUp, "password")
	logger.InfoWithUser(session.User.ID.String(), "user_signed_up", map[string]interface{}{
		"invited": req.InvitationCode != "",
	})
	return utils.Success(c, fiber.StatusCreated, session)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	session, err := h.Auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("login_failed", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return serviceError(c, err, "failed signing in")
	}

	logger.InfoWithUser(session.User.ID.String(), "login_success", map[string]interface{}{
		"ip": c.IP(),
	})
	return utils.Success(c, fiber.StatusOK, session)
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	session, err := h.Auth.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		return serviceError(c, err, "failed refreshing session")
	}
	return utils.Success(c, fiber.StatusOK, session)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Auth.Logout(c.Context(), req.RefreshToken); err != nil {
		return serviceError(c, err, "failed signing out")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"signedOut": true})
}

// Session returns the user behind the presented access token.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": currentUser})
}

func (h *AuthHandler) UpdateUser(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateUserRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	user, err := h.Auth.UpdateUser(c.Context(), currentUser.ID, services.UpdateUserInput{
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return serviceError(c, err, "failed updating user")
	}

	logger.InfoWithUser(currentUser.ID.String(), "user_updated", map[string]interface{}{
		"password_changed": req.Password != nil,
	})
	return utils.Success(c, fiber.StatusOK, user)
}

// RequestPasswordReset answers the same way for known and unknown emails.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req resetRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	token, err := h.Auth.RequestPasswordReset(c.Context(), req.Email)
	if err != nil {
		return serviceError(c, err, "failed requesting password reset")
	}
	if token != "" {
		// TODO: hand the token to a mail sender once one is configured.
		logger.Info("password_reset_requested", map[string]interface{}{
			"email":       req.Email,
			"reset_token": token,
		})
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "if the account exists, a reset link has been sent",
	})
}

func (h *AuthHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req resetConfirmRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	if err := h.Auth.ResetPassword(c.Context(), req.Token, req.Password); err != nil {
		return serviceError(c, err, "failed resetting password")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"reset": true})
}

// OAuthStart validates the invitation code before handing out the provider URL.
func (h *AuthHandler) OAuthStart(c *fiber.Ctx) error {
	provider := c.Params("provider")
	if _, _, err := h.Auth.OAuth.GetOAuthConfig(provider); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	url, err := h.Auth.BeginOAuth(c.Context(), provider, c.Query("invitationCode"))
	if err != nil {
		return serviceError(c, err, "failed starting oauth sign-in")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

func (h *AuthHandler) OAuthCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return utils.Error(c, fiber.StatusBadRequest, "missing code or state")
	}

	session, err := h.Auth.CompleteOAuth(c.Context(), provider, code, state)
	if err != nil {
		logger.Warn("oauth_login_failed", map[string]interface{}{
			"provider": provider,
			"ip":       c.IP(),
			"error":    err.Error(),
		})
		return serviceError(c, err, "oauth sign-in failed")
	}

	h.track(c, session, services.EventUserSignedIn, provider)
	return utils.Success(c, fiber.StatusOK, session)
}

func (h *AuthHandler) track(c *fiber.Ctx, session *services.Session, eventType, method string) {
	if h.Events == nil {
		return
	}
	h.Events.TrackAsync(services.EventEntry{
		UserID:    &session.User.ID,
		EventType: eventType,
		Metadata:  map[string]interface{}{"method": method},
		IPAddress: c.IP(),
		RequestID: middleware.RequestID(c),
	})
}
