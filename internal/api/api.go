// Package api is the admin surface the core publishes: the event-log summary
// and the disconnect/rate-change procedures, behind JWT bearer auth. CRUD
// over subscribers, packages and NAS records lives in the management API
// outside this process.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/easyisp/backend/internal/config"
	"github.com/easyisp/backend/internal/radius"
)

// Claims are the JWT token claims the management API issues
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GenerateToken mints a bearer token for the admin surface
func GenerateToken(username string, cfg *config.Config) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(cfg.JWTExpireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "easyisp",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// Server wraps the fiber app exposing the core's admin procedures
type Server struct {
	app  *fiber.App
	core *radius.Server
	cfg  *config.Config
	log  zerolog.Logger
}

// New builds the admin app and its routes
func New(core *radius.Server, cfg *config.Config, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	s := &Server{app: app, core: core, cfg: cfg, log: log}

	api := app.Group("/api", s.authRequired)
	api.Get("/radius/summary", s.getSummary)
	api.Get("/radius/events", s.getEvents)
	api.Post("/radius/disconnect", s.postDisconnect)
	api.Post("/radius/rate", s.postRateChange)

	return s
}

// App exposes the underlying fiber app (used by tests)
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving the admin port
func (s *Server) Listen() error {
	return s.app.Listen(fmt.Sprintf(":%d", s.cfg.AdminPort))
}

// Shutdown stops the app gracefully
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// authRequired validates the HS256 bearer token
func (s *Server) authRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Missing authorization header",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid authorization header format",
		})
	}

	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid or expired token",
		})
	}

	return c.Next()
}

func (s *Server) getSummary(c *fiber.Ctx) error {
	return c.JSON(s.core.Summary())
}

func (s *Server) getEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	return c.JSON(fiber.Map{
		"events": s.core.RecentEvents(limit),
	})
}

type coaRequest struct {
	TenantID  uint   `json:"tenant_id"`
	Username  string `json:"username"`
	RateLimit string `json:"rate_limit"`
}

func (s *Server) postDisconnect(c *fiber.Ctx) error {
	var req coaRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" || req.TenantID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "tenant_id and username are required",
		})
	}

	result := s.core.DisconnectByUsername(c.Context(), req.TenantID, req.Username)
	s.log.Info().
		Str("user", req.Username).
		Uint("tenant", req.TenantID).
		Bool("success", result.Success).
		Msg("admin disconnect")
	return c.JSON(result)
}

func (s *Server) postRateChange(c *fiber.Ctx) error {
	var req coaRequest
	if err := c.BodyParser(&req); err != nil || req.Username == "" || req.TenantID == 0 || req.RateLimit == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "tenant_id, username and rate_limit are required",
		})
	}

	result := s.core.ChangeRateByUsername(c.Context(), req.TenantID, req.Username, req.RateLimit)
	return c.JSON(result)
}
