package websocket

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"stop-trivia/models"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for simplicity; adjust in production
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWs upgrades the request and attaches the socket to a participant's
// hub. The hub replays the latest view, so the screen renders at once.
func ServeWs(h *models.Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &models.Client{Conn: conn, Send: make(chan models.WSMessage, 256)}
	if !h.Join(client) {
		// The session ended between lookup and upgrade.
		if err := conn.WriteJSON(models.WSMessage{Event: models.EventSessionClosed}); err != nil {
			log.Println("WriteJSON error:", err)
		}
		conn.Close()
		return
	}

	// Start read and write pumps
	go client.WritePump()
	go client.ReadPump(h)
}
