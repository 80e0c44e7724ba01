package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditRecorder persists audit entries
type AuditRecorder func(entry *model.AdminAuditLog)

// DBAuditRecorder writes audit entries with GORM
func DBAuditRecorder(db *gorm.DB) AuditRecorder {
	return func(entry *model.AdminAuditLog) {
		if err := db.Create(entry).Error; err != nil {
			log.Warnf("Audit: failed to record %s on %s: %v", entry.Action, entry.Resource, err)
		}
	}
}

// AdminAuditLog records admin mutations after the handler ran. Reads
// (GET/HEAD) are not recorded. The entry is written asynchronously.
func AdminAuditLog(record AuditRecorder, action, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}

		user, ok := GetUser(c)
		if !ok {
			return c.Next()
		}

		// Capture request JSON before the handler runs; fiber reuses buffers
		var newValue datatypes.JSON
		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) && json.Valid(c.Body()) {
			newValue = datatypes.JSON(append([]byte(nil), c.Body()...))
		}

		resourceKey := c.Params("id")
		if resourceKey == "" {
			resourceKey = c.Params("filename")
		}

		err := c.Next()

		entry := &model.AdminAuditLog{
			AdminID:     user.ID,
			Action:      action,
			Resource:    resource,
			ResourceKey: strings.Clone(resourceKey),
			NewValue:    newValue,
			StatusCode:  c.Response().StatusCode(),
			IPAddress:   strings.Clone(c.IP()),
			UserAgent:   strings.Clone(c.Get(fiber.HeaderUserAgent)),
			Description: c.Method() + " " + c.Path(),
		}
		if old := c.Locals("audit_old_value"); old != nil {
			if data, mErr := json.Marshal(old); mErr == nil {
				entry.OldValue = datatypes.JSON(data)
			}
		}

		go record(entry)

		return err
	}
}

// SetAuditOldValue lets a handler attach the state it replaced
func SetAuditOldValue(c *fiber.Ctx, value interface{}) {
	c.Locals("audit_old_value", value)
}
