package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/auth"
	"github.com/eburondeveloperph-gif/engr/internal/websocket"
	"github.com/eburondeveloperph-gif/engr/usecase"
)

const (
	requestTimeout      = 5 * time.Second
	defaultSessionLimit = 20
	maxSessionLimit     = 200

	operatorIDKey = "operator_id"
)

// Dependencies are the services the HTTP API exposes
type Dependencies struct {
	Hub               *websocket.Hub
	Assistant         websocket.AssistantCommands
	Store             repositories.StoreReader
	SessionLog        repositories.SessionLogRepository
	Tokens            *auth.TokenIssuer
	OperatorPIN       string
	LowStockThreshold float64
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "hardy-pos",
		})
	})

	v1 := e.Group("/api/v1")

	v1.POST("/auth/operator", func(c echo.Context) error {
		return operatorAuth(c, deps, logger)
	})

	protected := v1.Group("", requireOperator(deps.Tokens, logger))

	// Assistant control
	protected.GET("/assistant/state", func(c echo.Context) error {
		return c.JSON(http.StatusOK, deps.Assistant.State())
	})
	protected.POST("/assistant/connect", func(c echo.Context) error {
		return assistantCommand(c, logger, deps.Assistant.Connect)
	})
	protected.POST("/assistant/disconnect", func(c echo.Context) error {
		return assistantCommand(c, logger, deps.Assistant.Disconnect)
	})
	protected.POST("/assistant/camera", func(c echo.Context) error {
		var req CameraRequest
		if err := c.Bind(&req); err != nil || req.Enabled == nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "enabled is required",
			})
		}
		enabled := *req.Enabled
		return assistantCommand(c, logger, func(ctx context.Context) error {
			return deps.Assistant.SetCamera(ctx, enabled)
		})
	})

	// Store reads
	protected.GET("/products", func(c echo.Context) error {
		return listProducts(c, deps.Store, logger)
	})
	protected.GET("/products/low-stock", func(c echo.Context) error {
		return listLowStock(c, deps.Store, deps.LowStockThreshold, logger)
	})

	// Session log
	protected.GET("/sessions", func(c echo.Context) error {
		return listSessions(c, deps.SessionLog, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(deps.Hub, deps.Tokens, c, logger)
	})
}

func operatorAuth(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req OperatorAuthRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind operator auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if strings.TrimSpace(req.OperatorID) == "" || req.PIN == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Operator ID and PIN are required",
		})
	}

	if err := auth.CheckPIN(deps.OperatorPIN, req.PIN); err != nil {
		logger.Warn("Operator authentication failed", zap.String("operator_id", req.OperatorID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid operator credentials",
		})
	}

	token, expiresAt, err := deps.Tokens.GenerateOperatorToken(req.OperatorID)
	if err != nil {
		logger.Error("Failed to generate operator token",
			zap.String("operator_id", req.OperatorID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Operator authenticated successfully", zap.String("operator_id", req.OperatorID))

	return c.JSON(http.StatusOK, OperatorAuthResponse{
		Token:      token,
		ExpiresAt:  expiresAt,
		OperatorID: req.OperatorID,
	})
}

// bearerToken extracts the JWT from the Authorization header, falling back to
// the token query parameter for terminals that cannot set headers.
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.QueryParam("token")
}

func authenticate(tokens *auth.TokenIssuer, c echo.Context, logger *zap.Logger) (*auth.JWTClaims, error) {
	token := bearerToken(c)
	if token == "" {
		logger.Warn("Request rejected: missing token", zap.String("path", c.Path()))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("Request rejected: invalid token", zap.Error(err))
		return nil, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleOperator || claims.OperatorID == "" {
		logger.Warn("Request rejected: invalid role", zap.String("role", claims.Role))
		return nil, c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only operator tokens are accepted",
		})
	}
	return claims, nil
}

func requireOperator(tokens *auth.TokenIssuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, err := authenticate(tokens, c, logger)
			if claims == nil {
				return err
			}
			c.Set(operatorIDKey, claims.OperatorID)
			return next(c)
		}
	}
}

// assistantCommand runs a controller command and maps its error to a status
func assistantCommand(c echo.Context, logger *zap.Logger, run func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	err := run(ctx)
	if err == nil {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	}

	logger.Info("Assistant command failed",
		zap.String("path", c.Path()),
		zap.Any(operatorIDKey, c.Get(operatorIDKey)),
		zap.Error(err))

	var configErr *domain.ConfigurationError
	switch {
	case errors.Is(err, domain.ErrSessionActive):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "session_active", Message: err.Error()})
	case errors.As(err, &configErr):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "configuration", Message: err.Error()})
	case errors.Is(err, usecase.ErrControllerStopped):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: domain.ErrorKind(err), Message: err.Error()})
	}
}

func listProducts(c echo.Context, store repositories.StoreReader, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	query := strings.TrimSpace(c.QueryParam("q"))
	var err error
	resp := ProductsResponse{}
	if query != "" {
		resp.Products, err = store.SearchProducts(ctx, query)
	} else {
		resp.Products, err = store.ListProducts(ctx)
	}
	if err != nil {
		logger.Error("Failed to list products", zap.String("query", query), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "query_failed",
			Message: "Failed to list products",
		})
	}

	resp.Count = len(resp.Products)
	return c.JSON(http.StatusOK, resp)
}

func listLowStock(c echo.Context, store repositories.StoreReader, threshold float64, logger *zap.Logger) error {
	if v := c.QueryParam("threshold"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_threshold",
				Message: "threshold must be a non-negative number",
			})
		}
		threshold = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	products, err := store.ListLowStockProducts(ctx, threshold)
	if err != nil {
		logger.Error("Failed to list low stock products", zap.Float64("threshold", threshold), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "query_failed",
			Message: "Failed to list low stock products",
		})
	}

	return c.JSON(http.StatusOK, LowStockResponse{
		Products:  products,
		Count:     len(products),
		Threshold: threshold,
	})
}

func listSessions(c echo.Context, sessionLog repositories.SessionLogRepository, logger *zap.Logger) error {
	limit := defaultSessionLimit
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxSessionLimit {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_limit",
				Message: "limit must be between 1 and 200",
			})
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	sessions, err := sessionLog.ListRecent(ctx, limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "query_failed",
			Message: "Failed to list sessions",
		})
	}

	return c.JSON(http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, tokens *auth.TokenIssuer, c echo.Context, logger *zap.Logger) error {
	claims, err := authenticate(tokens, c, logger)
	if claims == nil {
		return err
	}

	logger.Info("WebSocket connection authenticated", zap.String("operator_id", claims.OperatorID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.OperatorID, logger)
}
