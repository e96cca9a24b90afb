// README: Route table and middleware chain.
package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fret/internal/http/handlers"
	"fret/internal/http/middleware"
	"fret/internal/types"
)

type RouterDeps struct {
	Log         *logrus.Logger
	Auth        *middleware.Auth
	Requests    *handlers.RequestHandler
	Assignments *handlers.AssignmentHandler
	Notes       *handlers.NoteHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log), cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", d.Auth.RequireAuth())

	req := api.Group("/requests")
	{
		req.POST("", d.Requests.Create)
		req.GET("", d.Requests.ListOwn)
		req.GET("/open", d.Auth.RequireRole(types.RoleChief), d.Requests.ListOpen)
		req.GET("/all", d.Auth.RequireRole(types.RoleAdmin), d.Requests.ListAll)
		req.GET("/:id", d.Requests.Get)
		req.PUT("/:id", d.Requests.Update)
		req.PUT("/:id/decision", d.Auth.RequireRole(types.RoleAdmin), d.Requests.Decide)
		req.POST("/:id/cancel", d.Requests.Cancel)
		req.POST("/:id/relaunch", d.Requests.Relaunch)
		req.DELETE("/:id", d.Requests.Delete)
		req.GET("/:id/events", d.Requests.Events)
	}

	asg := api.Group("/assignments")
	{
		asg.POST("", d.Auth.RequireRole(types.RoleChief), d.Assignments.Create)
		asg.GET("", d.Auth.RequireRole(types.RoleChief), d.Assignments.ListOwn)
		asg.GET("/:id", d.Assignments.Get)
		asg.PUT("/:id/driver", d.Auth.RequireRole(types.RoleChief), d.Assignments.UpdateDriver)
		asg.PUT("/:id/truck", d.Auth.RequireRole(types.RoleChief), d.Assignments.UpdateTruck)
		asg.POST("/:id/cancel", d.Auth.RequireRole(types.RoleChief), d.Assignments.Cancel)
		asg.POST("/:id/complete", d.Auth.RequireRole(types.RoleChief), d.Assignments.Complete)
	}

	notes := api.Group("/delivery-notes")
	{
		notes.GET("", d.Notes.ListOwn)
		notes.GET("/:id", d.Notes.Get)
	}

	return r
}
