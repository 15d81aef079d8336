package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// transactionRequest mirrors the ledger API's create-transaction payload.
type transactionRequest struct {
	Type     string `json:"type"`
	Utorid   string `json:"utorid"`
	Receiver string `json:"receiver,omitempty"`
	Spent    string `json:"spent,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Remark   string `json:"remark,omitempty"`
}

// PurchaseRequest triggers one simulated checkout.
type PurchaseRequest struct {
	Utorid string  `json:"utorid" binding:"required"`
	Spent  float64 `json:"spent" binding:"required"`
	Remark string  `json:"remark"`
}

// RedemptionRequest triggers one simulated redemption at the register.
type RedemptionRequest struct {
	Utorid string `json:"utorid" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Remark string `json:"remark"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status     string    `json:"status"`
	TerminalID string    `json:"terminal_id"`
	Timestamp  time.Time `json:"timestamp"`
	TrafficRPS float64   `json:"traffic_rps"`
}

// MockTerminal simulates a point-of-sale terminal that drives the
// ledger API with purchase and redemption traffic.
type MockTerminal struct {
	apiBaseURL   string
	cashier      string
	trafficRPS   float64
	minDelay     time.Duration
	maxDelay     time.Duration
	terminalID   string
	customerPool []string
	client       *http.Client
	rng          *rand.Rand
}

// NewMockTerminal creates a new mock terminal instance
func NewMockTerminal(apiBaseURL, cashier string, trafficRPS float64, minDelay, maxDelay time.Duration, customers []string) *MockTerminal {
	return &MockTerminal{
		apiBaseURL:   apiBaseURL,
		cashier:      cashier,
		trafficRPS:   trafficRPS,
		minDelay:     minDelay,
		maxDelay:     maxDelay,
		terminalID:   "MOCK_TERMINAL_" + uuid.New().String()[:8],
		customerPool: customers,
		client:       &http.Client{Timeout: 10 * time.Second},
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// submit posts one transaction to the ledger API as the terminal's cashier.
func (m *MockTerminal) submit(ctx context.Context, req *transactionRequest) (int, []byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiBaseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Actor-Utorid", m.cashier)
	httpReq.Header.Set("X-Terminal-Id", m.terminalID)

	res, err := m.client.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	resBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, resBody, nil
}

func (m *MockTerminal) simulateCheckout(ctx context.Context) {
	// Simulate the time a customer spends at the register
	time.Sleep(m.randomDelay())

	utorid := m.randomCustomer()
	spent := float64(m.rng.Intn(4950)+50) / 100.0 // $0.50 .. $49.99

	req := &transactionRequest{
		Type:   "purchase",
		Utorid: utorid,
		Spent:  fmt.Sprintf("%.2f", spent),
		Remark: "simulated checkout",
	}

	status, body, err := m.submit(ctx, req)
	if err != nil {
		log.Warn().
			Str("utorid", utorid).
			Err(err).
			Msg("Purchase submission failed")
		return
	}

	if status == http.StatusCreated {
		log.Info().
			Str("utorid", utorid).
			Str("spent", req.Spent).
			Msg("Purchase recorded")
	} else {
		log.Warn().
			Str("utorid", utorid).
			Int("status", status).
			Str("body", string(body)).
			Msg("Purchase rejected")
	}
}

func (m *MockTerminal) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	randomDelta := time.Duration(m.rng.Int63n(int64(delta)))
	return m.minDelay + randomDelta
}

func (m *MockTerminal) randomCustomer() string {
	return m.customerPool[m.rng.Intn(len(m.customerPool))]
}

// trafficLoop generates background checkout traffic at trafficRPS until
// the context is cancelled. A rate of zero disables the loop's work.
func (m *MockTerminal) trafficLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.trafficRPS <= 0 {
				continue
			}
			// Bernoulli thinning of the 10Hz tick down to trafficRPS
			if m.rng.Float64() < m.trafficRPS/10.0 {
				go m.simulateCheckout(ctx)
			}
		}
	}
}

// Handler struct holds the mock terminal and routes
type Handler struct {
	terminal *MockTerminal
}

func NewHandler(terminal *MockTerminal) *Handler {
	return &Handler{terminal: terminal}
}

// Purchase handles manual checkout requests
func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("utorid", req.Utorid).
		Float64("spent", req.Spent).
		Msg("Received purchase request")

	status, body, err := h.terminal.submit(c.Request.Context(), &transactionRequest{
		Type:   "purchase",
		Utorid: req.Utorid,
		Spent:  fmt.Sprintf("%.2f", req.Spent),
		Remark: req.Remark,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Ledger API unreachable",
			"details": err.Error(),
		})
		return
	}

	c.Data(status, "application/json; charset=utf-8", body)
}

// Redemption handles manual redemption requests
func (h *Handler) Redemption(c *gin.Context) {
	var req RedemptionRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Str("utorid", req.Utorid).
		Int64("amount", req.Amount).
		Msg("Received redemption request")

	status, body, err := h.terminal.submit(c.Request.Context(), &transactionRequest{
		Type:   "redemption",
		Utorid: req.Utorid,
		Amount: req.Amount,
		Remark: req.Remark,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Ledger API unreachable",
			"details": err.Error(),
		})
		return
	}

	c.Data(status, "application/json; charset=utf-8", body)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:     "healthy",
		TerminalID: h.terminal.terminalID,
		Timestamp:  time.Now(),
		TrafficRPS: h.terminal.trafficRPS,
	})
}

// UpdateConfig allows changing terminal configuration at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		TrafficRPS *float64 `json:"traffic_rps"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.TrafficRPS != nil {
		if *config.TrafficRPS >= 0 && *config.TrafficRPS <= 10.0 {
			h.terminal.trafficRPS = *config.TrafficRPS
			log.Info().Float64("rps", *config.TrafficRPS).Msg("Updated traffic rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "Configuration updated",
		"traffic_rps": h.terminal.trafficRPS,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	// Add request logging middleware
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/pos/purchase", handler.Purchase)
		v1.POST("/pos/redemption", handler.Redemption)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// Root health check
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Get configuration from environment
	port := getEnv("PORT", "8082")
	apiBaseURL := getEnv("LEDGER_API_URL", "http://localhost:8080")
	cashier := getEnv("CASHIER_UTORID", "cashier1")
	trafficRPS := getEnvFloat("TRAFFIC_RPS", 0)
	minDelay := getEnvDuration("MIN_DELAY", 100*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 2*time.Second)

	customers := []string{"student1", "student2", "student3", "student4", "student5"}

	log.Info().
		Str("port", port).
		Str("api", apiBaseURL).
		Str("cashier", cashier).
		Float64("traffic_rps", trafficRPS).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock POS Terminal")

	// Create mock terminal
	terminal := NewMockTerminal(apiBaseURL, cashier, trafficRPS, minDelay, maxDelay, customers)
	handler := NewHandler(terminal)
	router := SetupRouter(handler)

	trafficCtx, stopTraffic := context.WithCancel(context.Background())
	go terminal.trafficLoop(trafficCtx)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stopTraffic()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
