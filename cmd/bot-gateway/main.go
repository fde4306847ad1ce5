// ABOUTME: Entry point for the bot-gateway server
// ABOUTME: Serves bot WebSocket sessions and the command management API

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearth-chat/bot-gateway/internal/config"
	"github.com/hearth-chat/bot-gateway/internal/gateway"
	"github.com/hearth-chat/bot-gateway/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _                     _
| |__   ___ | |_       __ _  __ _| |_ _____      ____ _ _   _
| '_ \ / _ \| __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |_) | (_) | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_.__/ \___/ \__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                      |___/                              |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: HEARTH_BOT_GATEWAY_CONFIG env var > XDG_CONFIG_HOME/hearth/bot-gateway.yaml > ~/.config/hearth/bot-gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HEARTH_BOT_GATEWAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bot-gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hearth", "bot-gateway.yaml")
}

// getDataPath returns the path to the hearth data directory.
// Priority: XDG_DATA_HOME/hearth > ~/.local/share/hearth
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hearth")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bot-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                      Start the gateway server")
		fmt.Println("  init                       Create a new config file interactively")
		fmt.Println("  create-bot --app-id ID     Create a bot credential and print its token")
		fmt.Println("  reset-token --bot-id ID    Rotate a bot's secret and print the new token")
		fmt.Println("  health                     Check gateway health")
		fmt.Println("  sessions                   Show connected bot sessions")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "create-bot":
		err = runCreateBot(ctx)
	case "reset-token":
		err = runResetToken(ctx)
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Limits:   %d frames / %s per bot\n", cfg.Gateway.RateLimit, cfg.Gateway.RateWindow)

	fmt.Println()

	logger.Info("starting bot-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"response_timeout", cfg.Gateway.ResponseTimeout,
	)

	// Create and run gateway
	gw, err := gateway.New(cfg, &gateway.Options{Logger: logger})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runSessions(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to ready endpoint with context
	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessions check failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// generateSecret returns a URL-safe random secret. The secret may itself
// contain no dots, so the token's first dot always separates the bot ID.
func generateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// runCreateBot registers a bot credential and prints its connection
// token. The secret is stored hashed; the token is shown exactly once.
func runCreateBot(ctx context.Context) error {
	flags, err := parseFlags(os.Args[2:], map[string]bool{
		"--app-id": true, "--owner": true, "--name": true, "--bot-id": false,
	})
	if err != nil {
		return err
	}

	botUserID := flags["--bot-id"]
	if botUserID == "" {
		botUserID = uuid.New().String()
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}

	cred := &store.BotCredential{
		BotUserID:     botUserID,
		ApplicationID: flags["--app-id"],
		OwnerUserID:   flags["--owner"],
		DisplayName:   flags["--name"],
		SecretHash:    string(hash),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.CreateBotCredential(ctx, cred); err != nil {
		return fmt.Errorf("creating credential: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Created bot: %s (%s)\n", cred.DisplayName, botUserID)
	fmt.Println()
	fmt.Printf("  Token: %s.%s\n", botUserID, secret)
	fmt.Println()
	yellow.Println("  Store this token now. It cannot be retrieved again.")

	return nil
}

// runResetToken rotates a bot's secret, invalidating the old token.
func runResetToken(ctx context.Context) error {
	flags, err := parseFlags(os.Args[2:], map[string]bool{"--bot-id": true})
	if err != nil {
		return err
	}
	botUserID := flags["--bot-id"]

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}

	generation, err := s.ResetBotCredential(ctx, botUserID, string(hash))
	if err != nil {
		return fmt.Errorf("resetting credential: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Rotated secret for %s (generation %d)\n", botUserID, generation)
	fmt.Println()
	fmt.Printf("  Token: %s.%s\n", botUserID, secret)
	fmt.Println()
	yellow.Println("  The previous token no longer works. Live sessions stay connected.")

	return nil
}

// parseFlags handles "--flag value" and "--flag=value" for a known flag
// set. Flags mapped to true are required.
func parseFlags(args []string, known map[string]bool) (map[string]string, error) {
	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if hasInline {
			values[name] = inline
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("%s requires a value", name)
		}
		values[name] = args[i+1]
		i++
	}

	for name, required := range known {
		if required && strings.TrimSpace(values[name]) == "" {
			return nil, fmt.Errorf("%s flag is required", name)
		}
	}
	return values, nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("bot-gateway configuration setup")
	fmt.Println("===============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "bot-gateway.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8087")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	genSecret := prompt(reader, "Generate a JWT secret for the management API?", "yes")
	var jwtSecret string
	if strings.ToLower(genSecret) == "yes" || strings.ToLower(genSecret) == "y" {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret = base64.StdEncoding.EncodeToString(raw)
	}

	// Gateway limits
	fmt.Println("\n--- Gateway Configuration ---")
	rateLimit := prompt(reader, "Rate limit (frames per window per bot)", "60")
	rateWindow := prompt(reader, "Rate window", "60s")
	responseTimeout := prompt(reader, "Command response timeout", "30s")
	responseTTL := prompt(reader, "Response retrieval TTL", "5m")

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# bot-gateway configuration\n")
	cfg.WriteString("# Generated by bot-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	if jwtSecret != "" {
		cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	} else {
		cfg.WriteString("  jwt_secret: \"\"\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("gateway:\n")
	cfg.WriteString(fmt.Sprintf("  rate_limit: %s\n", rateLimit))
	cfg.WriteString(fmt.Sprintf("  rate_window: \"%s\"\n", rateWindow))
	cfg.WriteString(fmt.Sprintf("  response_timeout: \"%s\"\n", responseTimeout))
	cfg.WriteString(fmt.Sprintf("  response_ttl: \"%s\"\n", responseTTL))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  bot-gateway serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
