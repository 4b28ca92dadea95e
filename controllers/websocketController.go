package controllers

import (
	"github.com/gin-gonic/gin"

	"stop-trivia/websocket"
)

// ViewStream streams the caller's view state over a websocket. Browsers
// cannot set headers on the upgrade, so the id may also come as ?player=.
func (rc *RoundController) ViewStream(c *gin.Context) {
	id, err := NormalizeSessionCode(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	pid := playerID(c)
	if pid == "" {
		pid = c.Query("player")
	}
	ctrl, ok := rc.Gateway.Get(id, pid)
	if !ok {
		respondError(c, ErrSessionClosed)
		return
	}
	websocket.ServeWs(ctrl.Hub(), c.Writer, c.Request)
}
