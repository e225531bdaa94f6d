// Command smoke-paywall exercises a running API end to end without touching
// the chain: health, token issuance, tier creation and nonce issuance.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

const (
	creatorWallet = "Vote111111111111111111111111111111111111111"
	fanWallet     = "11111111111111111111111111111111"
)

func main() {
	base := os.Getenv("FANLOCK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	mustGet(client, base+"/healthz", http.StatusOK)
	mustGet(client, base+"/readyz", http.StatusOK)

	creatorToken := obtainToken(client, base, creatorWallet)
	fanToken := obtainToken(client, base, fanWallet)

	tier := postJSON(client, base+"/v1/tiers", creatorToken, map[string]any{
		"name":  fmt.Sprintf("smoke-%d", time.Now().Unix()),
		"price": 5_000_000,
	}, http.StatusCreated)
	tierID, _ := tier["id"].(string)
	if tierID == "" {
		log.Fatalf("create tier: missing id in %v", tier)
	}
	log.Printf("created tier %s", tierID)

	nonce := postJSON(client, base+"/v1/unlocks/nonce", fanToken, map[string]any{
		"tier_id": tierID,
	}, http.StatusCreated)
	if tok, _ := nonce["nonce"].(string); tok == "" {
		log.Fatalf("issue nonce: missing token in %v", nonce)
	}
	log.Printf("issued nonce, expires %v", nonce["expires_at"])

	postJSON(client, base+"/v1/tiers/"+tierID+"/deactivate", creatorToken, nil, http.StatusNoContent)
	log.Println("smoke-paywall: OK")
}

func obtainToken(client *http.Client, base, wallet string) string {
	payload := postJSON(client, base+"/v1/auth/token", "", map[string]any{
		"wallet": wallet,
	}, http.StatusOK)
	token, _ := payload["token"].(string)
	if token == "" {
		log.Fatalf("obtain token for %s: empty token", wallet)
	}
	return token
}

func mustGet(client *http.Client, url string, want int) {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		log.Fatalf("GET %s: status %d, want %d", url, resp.StatusCode, want)
	}
}

func postJSON(client *http.Client, url, token string, body any, want int) map[string]any {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal body for %s: %v", url, err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request %s: %v", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		log.Fatalf("POST %s: status %d, want %d", url, resp.StatusCode, want)
	}
	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return out
}
