package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/armory-kit/armory/internal/armory"
	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/revalidate"
)

// Lookups describes the armory queries exposed over HTTP. *armory.Client
// satisfies it; tests may inject fakes.
type Lookups interface {
	Region() string
	RealmStatus(ctx context.Context, refresh bool, names ...string) (armory.RealmStatus, revalidate.Source, error)
	RealmList(ctx context.Context, refresh bool) ([]string, error)
	Character(ctx context.Context, realm, name string, lookup armory.Lookup) (revalidate.Result, error)
	Guild(ctx context.Context, realm, name string, lookup armory.Lookup) (revalidate.Result, error)
	ArenaTeam(ctx context.Context, realm, size, name string, lookup armory.Lookup) (revalidate.Result, error)
	AuctionData(ctx context.Context, realm string, refresh bool) (armory.AuctionIndex, revalidate.Source, error)
	ArenaLadder(ctx context.Context, battlegroup, size string, lookup armory.Lookup) (revalidate.Result, error)
	Item(ctx context.Context, id int, lookup armory.Lookup) (revalidate.Result, error)
	Quest(ctx context.Context, id int, lookup armory.Lookup) (revalidate.Result, error)
	DataResource(ctx context.Context, name string, lookup armory.Lookup) (revalidate.Result, error)
}

// CacheAdmin is the subset of the pipeline used by the admin endpoints.
type CacheAdmin interface {
	Engine() string
	Drop(ctx context.Context, group cache.Group, key string) (bool, error)
	FlushAll(ctx context.Context) error
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Lookups    Lookups
	Cache      CacheAdmin
	ListenPort int
	// AdminToken 为空时不注册 /-/cache 管理接口；非空时请求必须携带
	// 相同值的 X-Armory-Admin-Token 头。
	AdminToken string
}

const (
	contextKeyRequestID = "_armory_request_id"
	headerAdminToken    = "X-Armory-Admin-Token"
)

// NewApp builds a Fiber application with request-ID middleware, lookup routes
// and, when an admin token is configured, cache administration routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Lookups == nil {
		return nil, errors.New("lookups are required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache admin is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		UnescapePath:  true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &handlers{logger: opts.Logger, lookups: opts.Lookups, cache: opts.Cache}

	api := app.Group("/api")
	api.Get("/realms", h.realmStatus)
	api.Get("/realms/list", h.realmList)
	api.Get("/character/:realm/:name", h.character)
	api.Get("/guild/:realm/:name", h.guild)
	api.Get("/arena/:realm/:size/:name", h.arenaTeam)
	api.Get("/auction/:realm", h.auction)
	api.Get("/ladder/:battlegroup/:size", h.arenaLadder)
	api.Get("/item/:id", h.item)
	api.Get("/quest/:id", h.quest)
	api.Get("/data/*", h.dataResource)

	if opts.AdminToken != "" {
		admin := app.Group("/-/cache", adminTokenMiddleware(opts.AdminToken, opts.Logger))
		admin.Post("/flush", h.flush)
		admin.Delete("/:group/*", h.drop)
	}

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并写回响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := strings.TrimSpace(c.Get("X-Request-ID"))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// adminTokenMiddleware 以常量时间比较 X-Armory-Admin-Token。
func adminTokenMiddleware(token string, logger *logrus.Logger) fiber.Handler {
	expected := []byte(token)
	return func(c fiber.Ctx) error {
		given := []byte(c.Get(headerAdminToken))
		if subtle.ConstantTimeCompare(given, expected) != 1 {
			logger.WithFields(logrus.Fields{
				"action":     "cache_admin",
				"path":       c.Path(),
				"request_id": RequestID(c),
			}).Warn("admin_token_rejected")
			return renderError(c, fiber.StatusUnauthorized, "admin_token_required")
		}
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func renderError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":      code,
		"request_id": RequestID(c),
	})
}
