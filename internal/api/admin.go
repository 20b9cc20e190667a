package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/users"
)

func (s *Server) listUsers(c *gin.Context) {
	list, err := s.svc.Users.List(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) createUser(c *gin.Context) {
	var in users.CreateInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.Users.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, u)
}

func (s *Server) adminGetUser(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok {
		return
	}
	u, err := s.svc.Users.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, u)
}

func (s *Server) adminUpdateUser(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok {
		return
	}
	var in users.AdminUpdateInput
	if !bind(c, &in) {
		return
	}
	u, err := s.svc.Users.Update(c.Request.Context(), caller(c).UserID, id, in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, u)
}

func (s *Server) adminDeleteUser(c *gin.Context) {
	id, ok := idParam(c, "id", "user")
	if !ok {
		return
	}
	if err := s.svc.Users.Delete(c.Request.Context(), caller(c).UserID, id); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "User deleted"})
}

func (s *Server) usersWithContracts(c *gin.Context) {
	list, err := s.svc.Users.ListWithContracts(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

// usersWithContractsOnly is shared by admins and supervisors. Supervisors
// usually narrow it with ?policyType=.
func (s *Server) usersWithContractsOnly(c *gin.Context) {
	list, err := s.svc.Users.ListWithContractsOnly(c.Request.Context(), c.Query("policyType"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) searchUsers(c *gin.Context) {
	list, err := s.svc.Users.Search(c.Request.Context(), c.Query("query"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}
