package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"vending-panel-backend/internal/logger"
	"vending-panel-backend/internal/mw"
)

// RouterOptions holds the HTTP-level policy.
type RouterOptions struct {
	AllowedOrigins string
	// AuthRateLimit and AuthRateBurst bound login and register attempts per IP.
	AuthRateLimit float64
	AuthRateBurst int
	Log           *zap.Logger
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.AuthRateLimit <= 0 {
		opts.AuthRateLimit = 1
	}
	if opts.AuthRateBurst <= 0 {
		opts.AuthRateBurst = 5
	}

	r := gin.New()
	r.Use(logger.GinMiddleware(opts.Log), gin.Recovery(), mw.CORS(opts.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Count()})
	})

	api := r.Group("/api")
	api.GET("/vapid_public_key", h.GetVAPIDPublicKey)

	auth := api.Group("/auth", mw.RateLimiter(rate.Limit(opts.AuthRateLimit), opts.AuthRateBurst))
	{
		auth.POST("/login", h.Login)
		auth.POST("/register", h.Register)
		auth.POST("/logout", h.Logout)
	}

	authed := api.Group("", mw.RequireSession(h.sessions))
	{
		authed.GET("/session", h.GetSession)
		authed.PUT("/session/machine", h.SelectMachine)
		authed.DELETE("/session/machine", h.ClearMachine)

		authed.GET("/machines", h.ListMachines)

		machine := authed.Group("/machines/:mid", mw.RequireMachine(h.gate, "mid"))
		machine.GET("/slots", h.GetSlots)
		machine.PUT("/slots", h.SaveSlots)
		machine.POST("/slots/:sid/open", h.OpenGate)
		machine.POST("/slots/:sid/restock", h.Restock)
		machine.GET("/sales", h.GetSales)

		admin := authed.Group("/admin", mw.RequireAdmin())
		admin.GET("/users", h.ListUsers)
		admin.PUT("/users/:uid", h.UpdateUser)

		authed.GET("/subscriptions", h.GetSubscription)
		authed.PUT("/subscriptions", h.PutSubscription)
		authed.DELETE("/subscriptions", h.DeleteSubscription)
	}

	return r
}
