package api

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/claims"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
)

// maxClaimForm bounds the in-memory part of a claim submission.
const maxClaimForm = 32 << 20

// submitClaim reads a multipart form: the claim as JSON in "data" and the
// supporting documents in "files".
func (s *Server) submitClaim(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxClaimForm); err != nil {
		httpx.Fail(c, apperr.Validation("invalid multipart form"))
		return
	}
	form := c.Request.MultipartForm
	var raw string
	if v := form.Value["data"]; len(v) > 0 {
		raw = v[0]
	}
	if raw == "" {
		httpx.Fail(c, apperr.Validation("data is required"))
		return
	}
	var in claims.SubmitInput
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		httpx.Fail(c, apperr.Validation("data is not valid JSON"))
		return
	}
	var uploads []claims.Upload
	for _, fh := range form.File["files"] {
		uploads = append(uploads, upload(fh))
	}
	cl, err := s.svc.Claims.Submit(c.Request.Context(), caller(c).UserID, in, uploads)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, gin.H{"message": "Claim submitted", "claim": cl})
}

func upload(fh *multipart.FileHeader) claims.Upload {
	return claims.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open:        func() (io.ReadCloser, error) { return fh.Open() },
	}
}

func (s *Server) userClaims(c *gin.Context) {
	userID, ok := idParam(c, "userId", "user")
	if !ok || !self(c, userID) {
		return
	}
	list, err := s.svc.Claims.ListForUser(c.Request.Context(), userID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) userClaim(c *gin.Context) {
	userID, ok := idParam(c, "userId", "user")
	if !ok || !self(c, userID) {
		return
	}
	claimID, ok := idParam(c, "claimId", "claim")
	if !ok {
		return
	}
	cl, err := s.svc.Claims.GetForUser(c.Request.Context(), userID, claimID)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, cl)
}

func (s *Server) listClaims(c *gin.Context) {
	list, err := s.svc.Claims.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) getClaim(c *gin.Context) {
	id, ok := idParam(c, "id", "claim")
	if !ok {
		return
	}
	cl, err := s.svc.Claims.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, cl)
}

func (s *Server) updateClaimStatus(c *gin.Context) {
	id, ok := idParam(c, "id", "claim")
	if !ok {
		return
	}
	var req ClaimStatusRequest
	if !bind(c, &req) {
		return
	}
	cl, err := s.svc.Claims.UpdateStatus(c.Request.Context(), caller(c).UserID, id, req.Status, req.Comment)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, cl)
}

func (s *Server) addClaimComment(c *gin.Context) {
	id, ok := idParam(c, "id", "claim")
	if !ok {
		return
	}
	var req CommentRequest
	if !bind(c, &req) {
		return
	}
	cl, err := s.svc.Claims.AddComment(c.Request.Context(), caller(c).UserID, id, req.Text)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, cl)
}

func (s *Server) deleteClaim(c *gin.Context) {
	id, ok := idParam(c, "id", "claim")
	if !ok {
		return
	}
	if err := s.svc.Claims.Delete(c.Request.Context(), id); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Claim deleted"})
}
