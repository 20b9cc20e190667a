// Package api exposes the portal services over HTTP under /api.
package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/authz"
	"github.com/kylejryan/insurance-policy-portal/internal/chat"
	"github.com/kylejryan/insurance-policy-portal/internal/claims"
	"github.com/kylejryan/insurance-policy-portal/internal/contact"
	"github.com/kylejryan/insurance-policy-portal/internal/contracts"
	"github.com/kylejryan/insurance-policy-portal/internal/dashboard"
	"github.com/kylejryan/insurance-policy-portal/internal/httpx"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/notify"
	"github.com/kylejryan/insurance-policy-portal/internal/push"
	"github.com/kylejryan/insurance-policy-portal/internal/tasks"
	"github.com/kylejryan/insurance-policy-portal/internal/users"
)

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

const keyRequestID = "api.request_id"

// Services are the collaborators the handlers call. Chat may be nil, in
// which case the assistant answers 503.
type Services struct {
	Contracts *contracts.Service
	Claims    *claims.Service
	Users     *users.Service
	Notify    *notify.Service
	Contact   *contact.Service
	Dashboard *dashboard.Service
	Tasks     *tasks.Service
	Chat      *chat.Client
	Push      *push.Hub
	JWT       *authz.JWT
}

// Options tune the HTTP layer.
type Options struct {
	DevBypassAuth  bool
	ErrorDetail    bool // include the underlying error in responses
	AllowTesting   bool // honour ?testing=true on subscriptions
	AllowedOrigins []string
}

// Server holds the router and its dependencies.
type Server struct {
	svc      Services
	opts     Options
	log      *zap.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds the router with every route mounted.
func NewServer(svc Services, opts Options, log *zap.Logger) *Server {
	s := &Server{svc: svc, opts: opts, log: log}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}

	r := gin.New()
	r.Use(requestID(), s.setup(), accessLog(), recovery(), cors(opts.AllowedOrigins))
	s.routes(r.Group("/api"))
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes(api *gin.RouterGroup) {
	auth := authz.Middleware(s.svc.JWT, s.opts.DevBypassAuth)
	admin := authz.RequireRole(models.RoleAdmin)
	supervisor := authz.RequireRole(models.RoleSupervisor)
	staff := authz.RequireRole(models.RoleAdmin, models.RoleSupervisor)

	api.GET("/healthz", func(c *gin.Context) { httpx.JSON(c, http.StatusOK, gin.H{"status": "ok"}) })

	// Contracts. The webhook authenticates through its signature.
	api.POST("/contracts/webhook", s.paymentWebhook)
	ct := api.Group("/contracts", auth)
	{
		ct.POST("/subscribe", s.subscribe)
		ct.POST("/finalize-payment", s.finalizePayment)
		ct.POST("/fix-statuses", admin, s.fixStatuses)
		ct.GET("/renewable/:userId", s.renewableContracts)
		ct.GET("/download/:contractId", s.downloadCertificate)
		ct.POST("/prepare-renewal/:contractId", s.prepareRenewal)
		ct.POST("/execute-renewal/:contractId", s.executeRenewal)
		ct.GET("/:userId", s.userContracts)
	}

	ag := api.Group("/auth")
	{
		ag.POST("/register", s.register)
		ag.POST("/login", s.login)
		ag.POST("/forgot-password", s.forgotPassword)
		ag.POST("/reset-password/:token", s.resetPassword)
		ag.GET("/pending-reset-requests", auth, admin, s.pendingResets)
		ag.POST("/approve-reset/:token/:userId", auth, admin, s.approveReset)
	}

	ug := api.Group("/user", auth)
	{
		ug.GET("/:id", s.getUser)
		ug.PUT("/:id", s.updateProfile)
		ug.PUT("/change-password/:userId", s.changePassword)
		ug.POST("/:id/profile-pic", s.profilePicture)
	}

	cg := api.Group("/claims", auth)
	{
		cg.POST("/submit", s.submitClaim)
		cg.GET("/user/:userId", s.userClaims)
		cg.GET("/user/:userId/:claimId", s.userClaim)
	}

	sg := api.Group("/supervisor", auth, supervisor)
	{
		sg.GET("/claims", s.listClaims)
		sg.GET("/claims/:id", s.getClaim)
		sg.PUT("/claims/:id", s.updateClaimStatus)
		sg.POST("/claims/:id/comments", s.addClaimComment)
		sg.DELETE("/claims/:id", s.deleteClaim)
		sg.GET("/users-with-contracts-only", s.usersWithContractsOnly)
	}

	adm := api.Group("/admin", auth, admin)
	{
		adm.GET("/users", s.listUsers)
		adm.POST("/users", s.createUser)
		adm.GET("/users/:id", s.adminGetUser)
		adm.PUT("/users/:id", s.adminUpdateUser)
		adm.DELETE("/users/:id", s.adminDeleteUser)
		adm.GET("/users-with-contracts", s.usersWithContracts)
		adm.GET("/users-with-contracts-only", s.usersWithContractsOnly)
		adm.GET("/search-users", s.searchUsers)
	}

	dg := api.Group("/dashboard", auth, staff)
	{
		dg.GET("/stats", s.dashboardStats)
		dg.GET("/policy-types", s.policyTypes)
		dg.GET("/contract-activity", s.contractActivity)
		dg.GET("/contracts", s.dashboardContracts)
		dg.GET("/contracts/export", s.exportContracts)
		dg.GET("/users", s.dashboardUsers)
		dg.GET("/users/:id", s.adminGetUser)
		dg.GET("/claims", s.dashboardClaims)
		dg.GET("/claims/:id", s.getClaim)
	}

	ng := api.Group("/notifications", auth, staff)
	{
		ng.GET("", s.listNotifications)
		ng.GET("/unread-count", s.unreadCount)
		ng.PUT("/mark-all-read", s.markAllRead)
		ng.PUT("/:id/read", s.markRead)
		ng.GET("/ws", s.notificationStream)
	}

	api.GET("/settings/:id", auth, staff, s.getSettings)
	api.PUT("/settings/:id", auth, staff, s.updateSettings)

	api.POST("/contact", s.submitContact)
	api.GET("/contact/messages", auth, supervisor, s.contactMessages)
	api.POST("/contact/reply", auth, supervisor, s.replyContact)

	tg := api.Group("/tasks", auth)
	{
		tg.GET("", s.listTasks)
		tg.GET("/:id", s.getTask)
		tg.POST("", admin, s.createTask)
		tg.PUT("/:id", admin, s.updateTask)
		tg.DELETE("/:id", admin, s.deleteTask)
	}

	api.POST("/chat", authz.Optional(s.svc.JWT, s.opts.DevBypassAuth), s.chat)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(keyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// setup installs the per-request logger and the error detail policy.
func (s *Server) setup() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := s.log.With(zap.String("request_id", c.GetString(keyRequestID)))
		httpx.Setup(s.opts.ErrorDetail, log)(c)
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		httpx.Logger(c).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		httpx.Logger(c).Error("panic recovered", zap.Any("panic", rec), zap.Stack("stack"))
		httpx.Error(c, http.StatusInternalServerError, "internal server error")
	})
}

func cors(origins []string) gin.HandlerFunc {
	wildcard := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(origins, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Stripe-Signature, X-Request-ID, x-user-sub, x-user-role")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(s.opts.AllowedOrigins, "*") || slices.Contains(s.opts.AllowedOrigins, origin)
}
