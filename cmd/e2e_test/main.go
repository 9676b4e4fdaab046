package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

var baseURL = "http://localhost:8080"

var log = logrus.New()

// Drives a running server through register, deposit, buy, portfolio, sell
// and history. The server must quote the symbol below.
func main() {
	if v := os.Getenv("E2E_BASE_URL"); v != "" {
		baseURL = v
	}
	symbol := os.Getenv("E2E_SYMBOL")
	if symbol == "" {
		symbol = "AAPL"
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	// 1. Health Check
	call("GET", "/health", "", nil, 200)

	// 2. Register and log in
	username := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	call("POST", "/register", "", map[string]string{"username": username, "password": "pw", "confirmation": "pw"}, 201)
	login := call("POST", "/login", "", map[string]string{"username": username, "password": "pw"}, 200)
	token, _ := login["token"].(string)
	if token == "" {
		log.Fatal("login returned no token")
	}

	// 3. Deposit, including one over the cap
	call("POST", "/account", token, map[string]string{"amount": "500"}, 200)
	call("POST", "/account", token, map[string]string{"amount": "1000000"}, 400)

	// 4. Quote and buy
	call("GET", "/quote/"+symbol, token, nil, 200)
	call("POST", "/buy", token, map[string]any{"symbol": symbol, "shares": 2}, 200)

	// 5. Portfolio
	call("GET", "/portfolio", token, nil, 200)

	// 6. Oversell, then sell everything
	call("POST", "/sell", token, map[string]string{"symbol": symbol, "shares": "3"}, 400)
	call("POST", "/sell", token, map[string]string{"symbol": symbol, "shares": "2"}, 200)

	// 7. History
	call("GET", "/history", token, nil, 200)

	// 8. Logout invalidates the session
	call("POST", "/logout", token, nil, 200)
	call("GET", "/account", token, nil, 401)

	log.Info("ALL TESTS PASSED")
}

func call(method, path, token string, body any, expectedStatus int) map[string]any {
	log.Infof("Testing %s %s...", method, path)
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		log.Fatalf("Expected status %d, got %d. Body: %s", expectedStatus, resp.StatusCode, string(respBody))
	}
	log.Infof("Response: %s", string(respBody))

	out := map[string]any{}
	_ = json.Unmarshal(respBody, &out)
	return out
}
