package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"golang.org/x/time/rate"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bill-extractor")
	var (
		port        = fs.IntLong("port", 8000, "HTTP server port")
		dbPath      = fs.StringLong("db", "bill-extractor.db", "Database file path")
		storagePath = fs.StringLong("storage", "./bills", "Storage directory for uploaded bills")
		scannerType = fs.StringLong("scanner", "gemini", "OCR scanner: 'gemini', 'ollama' or 'none' (text input only)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		ocrAttempts = fs.IntLong("ocr-attempts", 3, "Attempts per OCR request before giving up")
		ocrCacheTTL = fs.StringLong("ocr-cache-ttl", "1h", "How long recognized text is cached per image (0 disables)")
		rateLimit   = fs.IntLong("rate-limit", 60, "Extraction requests allowed per minute (0 disables)")
		rateBurst   = fs.IntLong("rate-burst", 10, "Extraction requests allowed in a burst")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_EXTRACTOR"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cacheTTL, err := time.ParseDuration(*ocrCacheTTL)
	if err != nil {
		slog.Error("Invalid OCR cache TTL", "value", *ocrCacheTTL, "error", err)
		os.Exit(1)
	}
	if *ocrAttempts < 1 {
		slog.Error("OCR attempts must be at least 1", "value", *ocrAttempts)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := bill.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	var provider scanning.Scanner
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		provider, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		provider, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "none":
		slog.Warn("No OCR scanner configured, image uploads will be rejected")
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama or none")
		os.Exit(1)
	}

	// Retries sit under the cache so a cached recognition never hits the provider
	var scanner scanning.Scanner
	if provider != nil {
		scanner = scanning.NewRetrying(provider, uint(*ocrAttempts), time.Second)
		if cacheTTL > 0 {
			scanner = scanning.NewCaching(scanner, cacheTTL)
		}
		defer scanner.Close()
	}

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := bill.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	billService := bill.NewService(db, scanner, store)

	// Initialize server
	cfg := bill.ServerConfig{
		BasicAuth: bill.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		Version: version,
	}
	if *rateLimit > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(*rateLimit)), max(*rateBurst, 1))
	}
	server := bill.NewServer(billService, cfg)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}
	if cfg.Limiter != nil {
		slog.Info("Rate limiting enabled", "per_minute", *rateLimit, "burst", *rateBurst)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
