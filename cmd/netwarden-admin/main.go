// ABOUTME: Admin CLI for the netwarden hub dashboard API
// ABOUTME: Manages sessions, agent credentials, bindings, and the device inventory

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
             _                         _
 _ __   ___| |___      ____ _ _ __ __| | ___ _ __
| '_ \ / _ \ __\ \ /\ / / _' | '__/ _' |/ _ \ '_ \
| | | |  __/ |_ \ V  V / (_| | | | (_| |  __/ | | |
|_| |_|\___|\__| \_/\_/ \__,_|_|  \__,_|\___|_| |_|
                                           admin
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	hubURL := os.Getenv("NETWARDEN_HUB_URL")
	if hubURL == "" {
		hubURL = "http://localhost:8080"
	}
	hubURL = strings.TrimRight(hubURL, "/")
	token := getToken()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(hubURL, args)
	case "status":
		err = cmdStatus(hubURL, token)
	case "credentials", "creds":
		err = cmdCredentials(hubURL, token, args)
	case "devices":
		err = cmdDevices(hubURL, token)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: netwarden-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  login                        Sign in and save a session token")
	fmt.Println("  status                       Show hub health and session state")
	fmt.Println("  credentials                  List agent credentials")
	fmt.Println("  credentials create --name N  Issue a new agent credential")
	fmt.Println("  credentials revoke <id>      Permanently revoke a credential")
	fmt.Println("  credentials approve <id>     Approve the bound installation")
	fmt.Println("  credentials reject <id>      Clear the binding for re-pairing")
	fmt.Println("  devices                      List the device inventory")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  NETWARDEN_HUB_URL    Hub base URL (default: http://localhost:8080)")
	fmt.Println("  NETWARDEN_TOKEN      Session token (overrides the saved token file)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  netwarden-admin login")
	fmt.Println("  netwarden-admin credentials create --name 'garage pi'")
	fmt.Println("  netwarden-admin devices")
	fmt.Println()
}

// tokenPath is where login stores the session token.
func tokenPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "token"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "netwarden", "token")
}

func getToken() string {
	if token := os.Getenv("NETWARDEN_TOKEN"); token != "" {
		return token
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// apiError mirrors the hub's error envelope.
type apiError struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// request runs one JSON call against the hub and decodes a 2xx body
// into out (which may be nil for empty responses).
func request(hubURL, method, path, token string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequest(method, hubURL+path, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			if len(apiErr.Errors) > 0 {
				return fmt.Errorf("%s (%d): %v", apiErr.Message, resp.StatusCode, apiErr.Errors)
			}
			return fmt.Errorf("%s (%d)", apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("hub returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func cmdLogin(hubURL string, args []string) error {
	var username string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--username", "-u":
			if i+1 < len(args) {
				username = args[i+1]
				i++
			}
		}
	}

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	var resp struct {
		Token string `json:"token"`
		User  struct {
			Username    string `json:"username"`
			DisplayName string `json:"displayName"`
		} `json:"user"`
	}
	if err := request(hubURL, http.MethodPost, "/dashboard/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp); err != nil {
		return err
	}

	path := tokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(resp.Token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Signed in as %s\n", resp.User.Username)
	fmt.Printf("  Token saved to %s\n", path)
	return nil
}

func cmdStatus(hubURL, token string) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var health struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}
	if err := request(hubURL, http.MethodGet, "/health", "", nil, &health); err != nil {
		yellow.Printf("  Hub:      ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Hub:      ")
	fmt.Printf("%s at %s\n", health.Status, hubURL)

	if token == "" {
		yellow.Printf("  Session:  ")
		fmt.Println("(not signed in - run: netwarden-admin login)")
		fmt.Println()
		return nil
	}

	var creds []json.RawMessage
	if err := request(hubURL, http.MethodGet, "/dashboard/credentials", token, nil, &creds); err != nil {
		yellow.Printf("  Session:  ")
		color.Red("auth failed (%v)\n", err)
	} else {
		green.Printf("  Session:  ")
		fmt.Printf("valid (%d credentials)\n", len(creds))
	}

	fmt.Println()
	return nil
}

// credential is the dashboard's credential representation.
type credential struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Prefix     string  `json:"prefix"`
	CreatedAt  string  `json:"createdAt"`
	LastUsedAt *string `json:"lastUsedAt"`
	RevokedAt  *string `json:"revokedAt"`
	Approved   bool    `json:"approved"`
	Agent      *struct {
		InstallationID  string  `json:"installationId"`
		Hostname        *string `json:"hostname"`
		LastHeartbeatAt *string `json:"lastHeartbeatAt"`
	} `json:"agent"`
}

func cmdCredentials(hubURL, token string, args []string) error {
	if token == "" {
		return fmt.Errorf("not signed in (run: netwarden-admin login)")
	}

	// Default to list
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdCredentialsList(hubURL, token)
	case "create", "add":
		return cmdCredentialsCreate(hubURL, token, args)
	case "revoke", "rm", "delete":
		return cmdCredentialAction(hubURL, token, args, http.MethodDelete, "", "Revoked")
	case "approve":
		return cmdCredentialAction(hubURL, token, args, http.MethodPost, "/approve", "Approved")
	case "reject":
		return cmdCredentialAction(hubURL, token, args, http.MethodPost, "/reject", "Rejected")
	default:
		return fmt.Errorf("unknown credentials subcommand: %s (use list, create, revoke, approve, reject)", subcmd)
	}
}

func cmdCredentialsList(hubURL, token string) error {
	var creds []credential
	if err := request(hubURL, http.MethodGet, "/dashboard/credentials", token, nil, &creds); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agent Credentials")
	cyan.Println("  -----------------")

	if len(creds) == 0 {
		fmt.Println("  (no credentials)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tPREFIX\tSTATE\tAGENT\tLAST SEEN")
	fmt.Fprintln(w, "  --\t----\t------\t-----\t-----\t---------")

	for _, c := range creds {
		state := "unbound"
		agent := "-"
		lastSeen := "-"
		switch {
		case c.RevokedAt != nil:
			state = "revoked"
		case c.Agent != nil && c.Approved:
			state = "approved"
		case c.Agent != nil:
			state = "pending"
		}
		if c.Agent != nil {
			agent = c.Agent.InstallationID
			if c.Agent.Hostname != nil {
				agent = *c.Agent.Hostname
			}
			if c.Agent.LastHeartbeatAt != nil {
				lastSeen = formatTimestamp(*c.Agent.LastHeartbeatAt)
			}
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(c.ID, 12), truncate(c.Name, 20), c.Prefix, state, truncate(agent, 20), lastSeen)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdCredentialsCreate(hubURL, token string, args []string) error {
	var name string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		}
	}
	if name == "" {
		return fmt.Errorf("usage: credentials create --name <name>")
	}

	var resp struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Token  string `json:"token"`
		Prefix string `json:"prefix"`
	}
	if err := request(hubURL, http.MethodPost, "/dashboard/credentials", token, map[string]string{"name": name}, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("✓ Issued credential: %s\n", resp.ID)
	fmt.Printf("  Name:   %s\n", resp.Name)
	fmt.Printf("  Prefix: %s\n", resp.Prefix)
	fmt.Println()
	yellow.Println("  Agent token (shown once, store it now):")
	fmt.Printf("  %s\n", resp.Token)

	return nil
}

func cmdCredentialAction(hubURL, token string, args []string, method, suffix, verb string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: credentials %s <credential-id>", strings.ToLower(verb))
	}
	id := args[0]

	if err := request(hubURL, method, "/dashboard/credentials/"+id+suffix, token, nil, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %s credential: %s\n", verb, id)
	return nil
}

func cmdDevices(hubURL, token string) error {
	if token == "" {
		return fmt.Errorf("not signed in (run: netwarden-admin login)")
	}

	var devices []struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		HardwareAddress *string `json:"hardwareAddress"`
		Status          string  `json:"status"`
		NetworkAddress  *string `json:"networkAddress"`
		LastSeenAt      *string `json:"lastSeenAt"`
	}
	if err := request(hubURL, http.MethodGet, "/dashboard/devices", token, nil, &devices); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Devices")
	cyan.Println("  -------")

	if len(devices) == 0 {
		fmt.Println("  (no devices)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tMAC\tIP\tSTATUS\tLAST SEEN")
	fmt.Fprintln(w, "  ----\t---\t--\t------\t---------")

	for _, d := range devices {
		mac := "-"
		if d.HardwareAddress != nil {
			mac = *d.HardwareAddress
		}
		ip := "-"
		if d.NetworkAddress != nil {
			ip = *d.NetworkAddress
		}
		lastSeen := "-"
		if d.LastSeenAt != nil {
			lastSeen = formatTimestamp(*d.LastSeenAt)
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", truncate(d.Name, 24), mac, ip, d.Status, lastSeen)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func formatTimestamp(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return t.Local().Format("Jan 02 15:04")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
