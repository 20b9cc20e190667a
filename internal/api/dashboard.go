package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/dashboard"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) dashboardStats(c *gin.Context) {
	st, err := s.svc.Dashboard.Stats(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, st)
}

func (s *Server) policyTypes(c *gin.Context) {
	pts, err := s.svc.Dashboard.PolicyTypeDistribution(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(pts))
}

func (s *Server) contractActivity(c *gin.Context) {
	pts, err := s.svc.Dashboard.ContractActivityByMonth(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, pts)
}

func (s *Server) dashboardContracts(c *gin.Context) {
	list, err := s.svc.Dashboard.Contracts(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) dashboardUsers(c *gin.Context) {
	list, err := s.svc.Dashboard.Users(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) dashboardClaims(c *gin.Context) {
	list, err := s.svc.Dashboard.Claims(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) exportContracts(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.svc.Dashboard.ExportContracts(c.Request.Context(), &buf); err != nil {
		httpx.Fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dashboard.ExportFilename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
