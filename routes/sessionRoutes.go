package routes

import (
	"github.com/gin-gonic/gin"
	"stop-trivia/controllers"
)

func SessionRoutes(r *gin.Engine, rc *controllers.RoundController) {
	api := r.Group("/api/sessions")
	{
		api.POST("", rc.CreateSession)
		api.GET("/:id", rc.GetSession)
		api.DELETE("/:id", rc.LeaveSession)
		api.POST("/:id/join", rc.JoinSession)
		api.POST("/:id/ready", rc.MarkReady)
		api.POST("/:id/start", rc.StartRound)
		api.POST("/:id/stop", rc.StopRound)
		api.POST("/:id/points", rc.SubmitPoints)
		api.PUT("/:id/inputs", rc.SubmitInputs)
		api.GET("/:id/qr", rc.SessionQR)
	}
	r.GET("/healthz", rc.Health)
}
