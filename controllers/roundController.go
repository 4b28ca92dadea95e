// controllers/roundController.go
package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"stop-trivia/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const (
	// PlayerHeader carries the participant id for non-browser clients.
	PlayerHeader = "X-Player-ID"
	// PlayerCookie carries the participant id for browsers.
	PlayerCookie = "player_id"

	requestTimeout = 10 * time.Second
	qrSize         = 320
)

// RoundController handles HTTP requests for sessions and their rounds.
type RoundController struct {
	Gateway *Gateway
}

// NewRoundController returns a new RoundController instance.
func NewRoundController(g *Gateway) *RoundController {
	return &RoundController{Gateway: g}
}

type playerRequest struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
	Duration int    `json:"duration"`
}

type pointsRequest struct {
	Delta int `json:"delta"`
}

// respondError writes the error body the UI branches on.
func respondError(c *gin.Context, err error) {
	var e *Error
	if !errors.As(err, &e) {
		log.Printf("unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if e.Code == CodeStoreUnavailable {
		log.Printf("store error: %v", err)
	}
	c.JSON(e.Code.HTTPStatus(), gin.H{"error": e.Error(), "code": e.Code})
}

// playerID reads the caller's id from the header or cookie.
func playerID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(PlayerHeader)); id != "" {
		return id
	}
	if cookie, err := c.Cookie(PlayerCookie); err == nil {
		return cookie
	}
	return ""
}

// ensurePlayerID returns the caller's id, minting one and setting the
// cookie when the caller has none yet.
func ensurePlayerID(c *gin.Context) string {
	if id := playerID(c); id != "" {
		return id
	}
	id := uuid.New().String()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(PlayerCookie, id, 0, "/", "", false, true)
	return id
}

func bindPlayer(c *gin.Context) (playerRequest, bool) {
	var req playerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, newError(CodeInvalidArgument, "invalid request body"))
			return req, false
		}
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(c, newError(CodeInvalidArgument, "name is required"))
		return req, false
	}
	return req, true
}

// participant resolves the caller's live controller for the :id session.
func (rc *RoundController) participant(c *gin.Context) (*Controller, bool) {
	id, err := NormalizeSessionCode(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	pid := playerID(c)
	if pid == "" {
		respondError(c, newError(CodeInvalidArgument, "player id is required"))
		return nil, false
	}
	ctrl, ok := rc.Gateway.Get(id, pid)
	if !ok {
		respondError(c, ErrSessionClosed)
		return nil, false
	}
	return ctrl, true
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// CreateSession opens a new session with the caller as host.
func (rc *RoundController) CreateSession(c *gin.Context) {
	req, ok := bindPlayer(c)
	if !ok {
		return
	}
	if req.Duration == 0 {
		req.Duration = models.DefaultRoundSeconds
	}
	player := models.Player{ID: ensurePlayerID(c), Name: req.Name, PhotoURL: req.PhotoURL}

	ctx, cancel := requestContext(c)
	defer cancel()
	ctrl, err := rc.Gateway.Create(ctx, player, req.Duration)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"playerId": player.ID,
		"session":  ctrl.View(),
	})
}

// JoinSession adds the caller to the :id session.
func (rc *RoundController) JoinSession(c *gin.Context) {
	req, ok := bindPlayer(c)
	if !ok {
		return
	}
	player := models.Player{ID: ensurePlayerID(c), Name: req.Name, PhotoURL: req.PhotoURL}

	ctx, cancel := requestContext(c)
	defer cancel()
	ctrl, err := rc.Gateway.Join(ctx, player, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"playerId": player.ID,
		"session":  ctrl.View(),
	})
}

// GetSession returns the caller's view, or the stored document for
// anyone not playing in it.
func (rc *RoundController) GetSession(c *gin.Context) {
	id, err := NormalizeSessionCode(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if pid := playerID(c); pid != "" {
		if ctrl, ok := rc.Gateway.Get(id, pid); ok {
			c.JSON(http.StatusOK, gin.H{"session": ctrl.View()})
			return
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	s, err := rc.Gateway.Read(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": s})
}

// MarkReady counts the caller as ready for the next round.
func (rc *RoundController) MarkReady(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := ctrl.MarkReady(ctx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": ctrl.View()})
}

// StartRound starts the next round if the caller is the host.
func (rc *RoundController) StartRound(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	started, err := ctrl.StartRound(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started})
}

// StopRound ends the round in progress.
func (rc *RoundController) StopRound(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := ctrl.StopRound(ctx); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Round stopped."})
}

// SubmitPoints adds the posted delta to the caller's score.
func (rc *RoundController) SubmitPoints(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	var req pointsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Delta == 0 {
		respondError(c, newError(CodeInvalidArgument, "delta is required"))
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := ctrl.SubmitPoints(ctx, req.Delta); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"points": ctrl.View().Points})
}

// SubmitInputs stores the caller's answers for the round in progress.
func (rc *RoundController) SubmitInputs(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	var inputs models.StopInputs
	if err := c.ShouldBindJSON(&inputs); err != nil {
		respondError(c, newError(CodeInvalidArgument, "invalid inputs"))
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := ctrl.SubmitInputs(ctx, inputs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LeaveSession exits the session. With force=true the exit happens even
// mid-round, as when the screen is closed.
func (rc *RoundController) LeaveSession(c *gin.Context) {
	ctrl, ok := rc.participant(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	var err error
	if c.Query("force") == "true" {
		err = ctrl.Close(ctx)
	} else {
		err = ctrl.Leave(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SessionQR renders the join code as a PNG so players can scan it.
func (rc *RoundController) SessionQR(c *gin.Context) {
	id, err := NormalizeSessionCode(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	png, err := qrcode.Encode(id, qrcode.Medium, qrSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr generation failed"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Health reports the process is serving.
func (rc *RoundController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": rc.Gateway.Len()})
}
