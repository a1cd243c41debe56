package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"mission_rewards/internal/logger"
	"mission_rewards/internal/ws"

	"github.com/gorilla/websocket"
)

// Connects a wallet over HTTP, opens /ws and prints every pushed event until
// the duration elapses. Run the server first.
func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "server host:port")
	wallet := flag.String("wallet", "0x00000000000000000000000000000000000000a1", "wallet to connect")
	activity := flag.String("activity", "game_played", "activity to post after connecting (empty to skip)")
	wait := flag.Duration("wait", 5*time.Second, "how long to listen")
	flag.Parse()

	logger.Init("info", false)
	base := "http://" + *addr + "/api/v1"

	body, _ := json.Marshal(map[string]string{"wallet": *wallet})
	res, err := http.Post(base+"/auth/connect", "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Fatal("connect request failed", "error", err)
	}
	var auth struct {
		Token string `json:"token"`
	}
	err = json.NewDecoder(res.Body).Decode(&auth)
	res.Body.Close()
	if err != nil || auth.Token == "" {
		logger.Fatal("no token in connect response", "status", res.StatusCode, "error", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?token=%s", *addr, auth.Token), nil)
	if err != nil {
		logger.Fatal("dial failed", "error", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(ws.Message{Type: ws.MsgPing}); err != nil {
		logger.Fatal("write ping", "error", err)
	}

	if *activity != "" {
		body, _ := json.Marshal(map[string]string{"kind": *activity})
		req, _ := http.NewRequest(http.MethodPost, base+"/me/activity", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		if res, err := http.DefaultClient.Do(req); err != nil {
			logger.Warn("activity request failed", "error", err)
		} else {
			res.Body.Close()
			logger.Info("activity posted", "kind", *activity, "status", res.StatusCode)
		}
	}

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		fmt.Println(string(msg))
	}

	logger.Info("smoke test finished")
}
