package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/users"
)

func (s *Server) register(c *gin.Context) {
	var in users.RegisterInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.Users.Register(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, gin.H{"message": "User registered successfully", "user": u})
}

func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if !bind(c, &req) {
		return
	}
	sess, err := s.svc.Users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, sess)
}

func (s *Server) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := s.svc.Users.RequestReset(c.Request.Context(), req.Email); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Reset request sent to an administrator"})
}

func (s *Server) pendingResets(c *gin.Context) {
	list, err := s.svc.Users.PendingResets(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) approveReset(c *gin.Context) {
	userID, ok := idParam(c, "userId", "user")
	if !ok {
		return
	}
	if err := s.svc.Users.ApproveReset(c.Request.Context(), caller(c).UserID, c.Param("token"), userID); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Reset approved, link sent to the user"})
}

func (s *Server) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := s.svc.Users.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Password updated"})
}

func (s *Server) getUser(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok || !self(c, id) {
		return
	}
	u, err := s.svc.Users.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, u)
}

func (s *Server) updateProfile(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok || !self(c, id) {
		return
	}
	var in users.ProfileInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.Users.UpdateProfile(c.Request.Context(), id, in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, u)
}

// changePassword is limited to the account owner, staff included.
func (s *Server) changePassword(c *gin.Context) {
	id, ok := idParam(c, "userId", "user")
	if !ok {
		return
	}
	if caller(c).UserID != id {
		httpx.Fail(c, apperr.Forbidden("you can only change your own password"))
		return
	}
	var req ChangePasswordRequest
	if !bind(c, &req) {
		return
	}
	if err := s.svc.Users.ChangePassword(c.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Password updated"})
}

func (s *Server) profilePicture(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok {
		return
	}
	if caller(c).UserID != id {
		httpx.Fail(c, apperr.Forbidden("you can only change your own picture"))
		return
	}
	var req ProfilePicRequest
	if !bind(c, &req) {
		return
	}
	up, err := s.svc.Users.PresignProfilePicture(c.Request.Context(), id, req.ContentType)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, up)
}

func (s *Server) getSettings(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok || !ownSettings(c, id) {
		return
	}
	st, err := s.svc.Users.GetSettings(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, st)
}

func (s *Server) updateSettings(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok || !ownSettings(c, id) {
		return
	}
	var patch users.SettingsPatch
	if !bind(c, &patch) {
		return
	}
	st, err := s.svc.Users.UpdateSettings(c.Request.Context(), id, patch)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, st)
}

// ownSettings lets staff read their own settings and admins anyone's.
func ownSettings(c *gin.Context, id string) bool {
	p := caller(c)
	if p.UserID == id || p.Role == models.RoleAdmin {
		return true
	}
	httpx.Fail(c, apperr.Forbidden("access denied"))
	return false
}
