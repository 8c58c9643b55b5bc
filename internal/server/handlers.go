package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/armory-kit/armory/internal/armory"
	"github.com/armory-kit/armory/internal/cache"
	"github.com/armory-kit/armory/internal/revalidate"
	"github.com/armory-kit/armory/internal/upstream"
)

const headerSource = "X-Armory-Source"

type handlers struct {
	logger  *logrus.Logger
	lookups Lookups
	cache   CacheAdmin
}

func requestContext(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func lookupFromQuery(c fiber.Ctx) armory.Lookup {
	return armory.Lookup{
		Fields:  armory.SplitFields(c.Query("fields")),
		Refresh: refreshRequested(c),
	}
}

func refreshRequested(c fiber.Ctx) bool {
	raw := strings.TrimSpace(c.Query("refresh"))
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func (h *handlers) realmStatus(c fiber.Ctx) error {
	names := armory.SplitFields(c.Query("realms"))
	status, source, err := h.lookups.RealmStatus(requestContext(c), refreshRequested(c), names...)
	if err != nil {
		return h.renderLookupError(c, "realm_status", err)
	}
	c.Set(headerSource, string(source))
	return c.JSON(status)
}

func (h *handlers) realmList(c fiber.Ctx) error {
	names, err := h.lookups.RealmList(requestContext(c), refreshRequested(c))
	if err != nil {
		return h.renderLookupError(c, "realm_list", err)
	}
	return c.JSON(fiber.Map{"region": h.lookups.Region(), "realms": names})
}

func (h *handlers) character(c fiber.Ctx) error {
	res, err := h.lookups.Character(requestContext(c), c.Params("realm"), c.Params("name"), lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "character", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) guild(c fiber.Ctx) error {
	res, err := h.lookups.Guild(requestContext(c), c.Params("realm"), c.Params("name"), lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "guild", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) arenaTeam(c fiber.Ctx) error {
	res, err := h.lookups.ArenaTeam(requestContext(c), c.Params("realm"), c.Params("size"), c.Params("name"), lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "arena_team", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) auction(c fiber.Ctx) error {
	idx, source, err := h.lookups.AuctionData(requestContext(c), c.Params("realm"), refreshRequested(c))
	if err != nil {
		return h.renderLookupError(c, "auction", err)
	}
	c.Set(headerSource, string(source))
	return c.JSON(idx)
}

func (h *handlers) arenaLadder(c fiber.Ctx) error {
	res, err := h.lookups.ArenaLadder(requestContext(c), c.Params("battlegroup"), c.Params("size"), lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "arena_ladder", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) item(c fiber.Ctx) error {
	id, err := armory.ParseID(c.Params("id"))
	if err != nil {
		return h.renderLookupError(c, "item", err)
	}
	res, err := h.lookups.Item(requestContext(c), id, lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "item", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) quest(c fiber.Ctx) error {
	id, err := armory.ParseID(c.Params("id"))
	if err != nil {
		return h.renderLookupError(c, "quest", err)
	}
	res, err := h.lookups.Quest(requestContext(c), id, lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "quest", err)
	}
	return sendRecord(c, res)
}

func (h *handlers) dataResource(c fiber.Ctx) error {
	res, err := h.lookups.DataResource(requestContext(c), c.Params("*"), lookupFromQuery(c))
	if err != nil {
		return h.renderLookupError(c, "data_resource", err)
	}
	return sendRecord(c, res)
}

// sendRecord 原样返回缓存/上游的 JSON 正文，并附带来源与最后修改时间。
func sendRecord(c fiber.Ctx, res revalidate.Result) error {
	c.Set(headerSource, string(res.Source))
	if !res.LastModified.IsZero() {
		c.Set(fiber.HeaderLastModified, res.LastModified.UTC().Format(http.TimeFormat))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
	return c.Send(res.Raw)
}

func (h *handlers) renderLookupError(c fiber.Ctx, action string, err error) error {
	status, code := classifyError(err)
	fields := logrus.Fields{
		"action":     action,
		"request_id": RequestID(c),
		"status":     status,
	}
	entry := h.logger.WithError(err).WithFields(fields)
	if status >= fiber.StatusInternalServerError {
		entry.Error("lookup_failed")
	} else {
		entry.Warn("lookup_rejected")
	}
	return renderError(c, status, code)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, armory.ErrUnknownRealm):
		return fiber.StatusNotFound, "realm_not_found"
	case errors.Is(err, armory.ErrInvalidTeamSize):
		return fiber.StatusBadRequest, "invalid_team_size"
	case errors.Is(err, armory.ErrInvalidID):
		return fiber.StatusBadRequest, "invalid_id"
	case errors.Is(err, armory.ErrInvalidDataResource):
		return fiber.StatusBadRequest, "invalid_data_resource"
	case errors.Is(err, upstream.ErrInvalidCredentials):
		return fiber.StatusInternalServerError, "invalid_credentials"
	case errors.Is(err, revalidate.ErrUnavailable):
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return fiber.StatusNotFound, "record_not_found"
		}
		return fiber.StatusBadGateway, "upstream_unavailable"
	default:
		return fiber.StatusBadRequest, "invalid_request"
	}
}

func (h *handlers) flush(c fiber.Ctx) error {
	started := time.Now()
	if err := h.cache.FlushAll(requestContext(c)); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "cache_flush",
			"engine":     h.cache.Engine(),
			"request_id": RequestID(c),
		}).Error("cache_flush_failed")
		return renderError(c, fiber.StatusInternalServerError, "cache_flush_failed")
	}
	h.logger.WithFields(logrus.Fields{
		"action":     "cache_flush",
		"engine":     h.cache.Engine(),
		"request_id": RequestID(c),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("cache_flushed")
	return c.JSON(fiber.Map{"flushed": true, "engine": h.cache.Engine()})
}

func (h *handlers) drop(c fiber.Ctx) error {
	group, err := cache.ParseGroup(c.Params("group"))
	if err != nil {
		return renderError(c, fiber.StatusBadRequest, "unknown_group")
	}
	key := strings.TrimSpace(c.Params("*"))
	if key == "" {
		return renderError(c, fiber.StatusBadRequest, "key_required")
	}
	existed, err := h.cache.Drop(requestContext(c), group, key)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "cache_drop",
			"group":      group,
			"key":        key,
			"request_id": RequestID(c),
		}).Error("cache_drop_failed")
		return renderError(c, fiber.StatusInternalServerError, "cache_drop_failed")
	}
	return c.JSON(fiber.Map{"group": group, "key": key, "existed": existed})
}
