package mockbase

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

func wantsRepresentation(c *fiber.Ctx) bool {
	return strings.Contains(c.Get("Prefer"), "return=representation")
}

func tableParam(c *fiber.Ctx) (string, error) {
	table, err := url.PathUnescape(c.Params("table"))
	if err != nil || table == "" {
		return "", fiber.NewError(fiber.StatusBadRequest, "invalid table name")
	}
	return table, nil
}

func tableNotFound(c *fiber.Ctx, table string) error {
	return c.Status(fiber.StatusNotFound).JSON(
		NewErrorResponse(fiber.StatusNotFound, ErrCodeTableNotFound, "table "+table+" does not exist").
			WithNextActions("insert a row to create the table"),
	)
}

// listRecords handles GET /api/database/records/:table
func (s *Server) listRecords(c *fiber.Ctx) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	q, err := parseRecordQuery(c.Context().QueryArgs())
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidQuery, err.Error())
	}

	rows, err := s.tables.list(table, q)
	if errors.Is(err, ErrTableNotFound) {
		return tableNotFound(c, table)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordOperation(table, "select", len(rows))
	return c.JSON(rows)
}

// insertRecords handles POST /api/database/records/:table. The body is an
// array of objects or a single object.
func (s *Server) insertRecords(c *fiber.Ctx) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}

	var body interface{}
	if err := codec.Unmarshal(c.Body(), &body); err != nil {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "body is not valid JSON")
	}
	var rows []record
	switch v := body.(type) {
	case map[string]interface{}:
		rows = []record{v}
	case []interface{}:
		rows = make([]record, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest,
					"row "+strconv.Itoa(i)+" is not an object")
			}
			rows = append(rows, obj)
		}
	default:
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "body must be an object or an array of objects")
	}

	s.tables.createTable(table)
	stored := s.tables.insert(table, rows)
	s.metrics.RecordOperation(table, "insert", len(stored))

	if !wantsRepresentation(c) {
		c.Status(fiber.StatusCreated)
		return nil
	}
	return c.Status(fiber.StatusCreated).JSON(stored)
}

// updateRecords handles PATCH /api/database/records/:table
func (s *Server) updateRecords(c *fiber.Ctx) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	q, err := parseRecordQuery(c.Context().QueryArgs())
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidQuery, err.Error())
	}

	var patch map[string]interface{}
	if err := codec.Unmarshal(c.Body(), &patch); err != nil || patch == nil {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "body must be a JSON object")
	}

	updated, err := s.tables.update(table, q.filters, patch)
	if errors.Is(err, ErrTableNotFound) {
		return tableNotFound(c, table)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordOperation(table, "update", len(updated))

	if !wantsRepresentation(c) {
		c.Status(fiber.StatusNoContent)
		return nil
	}
	return c.JSON(updated)
}

// deleteRecords handles DELETE /api/database/records/:table
func (s *Server) deleteRecords(c *fiber.Ctx) error {
	table, err := tableParam(c)
	if err != nil {
		return err
	}
	q, err := parseRecordQuery(c.Context().QueryArgs())
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidQuery, err.Error())
	}

	removed, err := s.tables.remove(table, q.filters)
	if errors.Is(err, ErrTableNotFound) {
		return tableNotFound(c, table)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordOperation(table, "delete", len(removed))

	if !wantsRepresentation(c) {
		c.Status(fiber.StatusNoContent)
		return nil
	}
	return c.JSON(removed)
}
