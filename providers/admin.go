package providers

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gudfood/realtime/src/auth"
	"github.com/gudfood/realtime/src/stomp"
	"github.com/gudfood/realtime/src/store"
	"github.com/gudfood/realtime/src/types"
)

var validate = validator.New()

// publishRequest is the body of POST /api/broker/publish. The backend uses
// it to push notifications and announcements.
type publishRequest struct {
	Destination string          `json:"destination" validate:"required,startswith=/"`
	User        string          `json:"user"`
	Data        json.RawMessage `json:"data" validate:"required"`
}

// registerRoutes mounts /health and the admin API. When JWT_SECRET is set the
// admin API requires an administrator bearer token. Without a secret it is
// open and must stay on a private network.
func (b *Broker) registerRoutes(app *fiber.App) {
	app.Get("/health", b.handleHealth)

	api := app.Group("/api/broker", b.requireAdmin)
	api.Get("/info", b.handleInfo)
	api.Get("/sessions", b.handleSessions)
	api.Get("/destinations", b.handleDestinations)
	api.Post("/publish", b.handlePublish)
}

func (b *Broker) requireAdmin(c fiber.Ctx) error {
	if b.cfg.JWTSecret == "" {
		return c.Next()
	}
	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return fiber.NewError(fiber.StatusUnauthorized, auth.ErrMissingToken.Error())
	}
	claims, err := auth.ValidateToken(b.cfg.JWTSecret, strings.TrimSpace(token))
	if err != nil {
		b.logger.Warn().Err(err).Str("path", c.Path()).Msg("admin request rejected")
		return fiber.NewError(fiber.StatusUnauthorized, auth.ErrInvalidToken.Error())
	}
	if claims.Role != string(store.RoleAdministrator) {
		return fiber.NewError(fiber.StatusForbidden, "administrator role required")
	}
	return c.Next()
}

func (b *Broker) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (b *Broker) handleInfo(c fiber.Ctx) error {
	info := fiber.Map{
		"stomp":        stomp.Version,
		"endpoint":     b.cfg.Endpoint,
		"sessions":     b.hub.SessionCount(),
		"destinations": len(b.hub.Destinations()),
		"relay":        b.relay != nil && b.relay.Available(),
	}
	if b.relay != nil {
		info["relay_stats"] = b.relay.Stats()
	}
	return c.JSON(info)
}

func (b *Broker) handleSessions(c fiber.Ctx) error {
	ids := b.hub.SessionIDs()
	sessions := make([]types.SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info := b.hub.SessionInfo(id); info != nil {
			sessions = append(sessions, *info)
		}
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (b *Broker) handleDestinations(c fiber.Ctx) error {
	destinations := b.hub.Destinations()
	result := make([]fiber.Map, 0, len(destinations))
	for name, count := range destinations {
		result = append(result, fiber.Map{
			"destination":   name,
			"subscriptions": count,
		})
	}
	return c.JSON(fiber.Map{"destinations": result, "count": len(result)})
}

func (b *Broker) handlePublish(c fiber.Ctx) error {
	var req publishRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	msg := types.Message{
		Destination: req.Destination,
		ContentType: stomp.ContentTypeJSON,
		Body:        req.Data,
	}
	if req.User != "" {
		b.hub.PublishToUser(req.User, msg)
	} else {
		b.hub.Publish(msg)
	}
	b.logger.Debug().Str("destination", req.Destination).Str("user", req.User).Msg("admin publish")

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"published":   true,
		"destination": req.Destination,
	})
}
