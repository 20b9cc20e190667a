package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/tasks"
)

func (s *Server) listTasks(c *gin.Context) {
	list, err := s.svc.Tasks.List(c.Request.Context())
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, nonNil(list))
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := idParam(c, "id", "task")
	if !ok {
		return
	}
	t, err := s.svc.Tasks.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, t)
}

func (s *Server) createTask(c *gin.Context) {
	var in tasks.Input
	if !bind(c, &in) {
		return
	}
	t, err := s.svc.Tasks.Create(c.Request.Context(), in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusCreated, gin.H{"message": "Task created", "task": t})
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := idParam(c, "id", "task")
	if !ok {
		return
	}
	var in tasks.Input
	if !bind(c, &in) {
		return
	}
	t, err := s.svc.Tasks.Update(c.Request.Context(), id, in)
	if err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, gin.H{"message": "Task updated", "task": t})
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := idParam(c, "id", "task")
	if !ok {
		return
	}
	if err := s.svc.Tasks.Delete(c.Request.Context(), id); err != nil {
		httpx.Fail(c, err)
		return
	}
	httpx.JSON(c, http.StatusOK, MessageResponse{Message: "Task deleted"})
}
