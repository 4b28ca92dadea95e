package routes

import (
	"github.com/gin-gonic/gin"
	"stop-trivia/controllers"
)

func WebSocketRoutes(r *gin.Engine, rc *controllers.RoundController) {
	r.GET("/ws/sessions/:id", rc.ViewStream)
}
