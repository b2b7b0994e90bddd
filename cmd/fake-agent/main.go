// ABOUTME: Minimal fake agent for E2E testing the hub over HTTP
// ABOUTME: Usage: fake-agent -token SECRET [-hub http://localhost:8080]

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"
)

// canned is the device snapshot the fake agent reports on every sync.
var canned = []map[string]any{
	{"name": "router", "hardwareAddress": "aa:bb:cc:dd:ee:01", "status": "online", "networkAddress": "192.168.1.1"},
	{"name": "printer", "hardwareAddress": "aa:bb:cc:dd:ee:02", "status": "offline"},
	{"name": "laptop", "hardwareAddress": "aa:bb:cc:dd:ee:03", "status": "online", "networkAddress": "192.168.1.42"},
}

func main() {
	hub := flag.String("hub", "http://localhost:8080", "hub base URL")
	token := flag.String("token", "", "agent credential (required)")
	installID := flag.String("install-id", "fake-agent-1", "installation id to present")
	hostname := flag.String("hostname", "e2e-test", "hostname to present")
	interval := flag.Duration("interval", 10*time.Second, "heartbeat interval")
	flag.Parse()

	if *token == "" {
		log.Fatal("-token is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, strings.TrimRight(*hub, "/"), *token, *installID, *hostname, *interval); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, hub, token, installID, hostname string, interval time.Duration) error {
	client := &http.Client{Timeout: 10 * time.Second}

	synced := false
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := heartbeat(ctx, client, hub, token, installID, hostname)
		if err != nil {
			log.Printf("heartbeat error: %v", err)
		} else {
			log.Printf("heartbeat: %s", status)

			// Push the canned inventory once the binding is approved.
			if status == "ok" && !synced {
				if err := sync(ctx, client, hub, token); err != nil {
					log.Printf("sync error: %v", err)
				} else {
					synced = true
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func heartbeat(ctx context.Context, client *http.Client, hub, token, installID, hostname string) (string, error) {
	body := map[string]any{
		"installationId":  installID,
		"hardwareAddress": "aa:bb:cc:dd:ee:ff",
		"hostname":        hostname,
		"networkAddress":  "192.168.1.10",
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := post(ctx, client, hub+"/agent/heartbeat", http.MethodPost, token, body, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func sync(ctx context.Context, client *http.Client, hub, token string) error {
	var resp struct {
		Created int `json:"created"`
		Updated int `json:"updated"`
		Deleted int `json:"deleted"`
	}
	err := post(ctx, client, hub+"/agent/devices/sync", http.MethodPut, token, map[string]any{"devices": canned}, &resp)
	if err != nil {
		return err
	}
	log.Printf("synced devices: created=%d updated=%d deleted=%d", resp.Created, resp.Updated, resp.Deleted)
	return nil
}

func post(ctx context.Context, client *http.Client, url, method, token string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encoding body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
