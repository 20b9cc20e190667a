package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/contact"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
)

func (s *Server) submitContact(c *gin.Context) {
	var in contact.SubmitInput
	if !bind(c, &in) {
		return
	}
	msg, err := s.svc.Contact.Submit(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, gin.H{"message": "Message sent", "contact": msg})
}

func (s *Server) contactMessages(c *gin.Context) {
	list, err := s.svc.Contact.List(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) replyContact(c *gin.Context) {
	var in contact.ReplyInput
	if !bind(c, &in) {
		return
	}
	msg, err := s.svc.Contact.Reply(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, msg)
}

// chat answers visitors too; a signed-in caller gets the member prompt.
func (s *Server) chat(c *gin.Context) {
	if s.svc.Chat == nil {
		httpx.Error(c, http.StatusServiceUnavailable, "assistant unavailable")
		return
	}
	var req ChatRequest
	if !bind(c, &req) {
		return
	}
	p, signedIn := authz.Current(c)
	name := p.FullName
	if signedIn && strings.TrimSpace(name) == "" {
		if u, err := s.svc.Users.Get(c.Request.Context(), p.UserID); err == nil {
			name = u.FullName()
		}
	}
	reply, err := s.svc.Chat.Reply(c.Request.Context(), req.Message, signedIn, name)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, ChatResponse{Reply: reply})
}
