// Package response renders the JSON envelope shared by every classpad
// endpoint. Success bodies wrap their payload under data; failures are flat
// with a human message and a stable machine code.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/classpad/classpad/pkg/errors"
)

// Response is the wire envelope.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries pagination counters for list endpoints.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

// NewMeta builds pagination metadata, deriving the page count from the total
// row count.
func NewMeta(page, perPage int, total int64) *Meta {
	m := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 {
		m.TotalPages = (m.Total + perPage - 1) / perPage
	}
	return m
}

// Success writes payload under the envelope with the given status.
func Success(c *gin.Context, status int, payload any) {
	c.JSON(status, Response{Success: true, Data: payload})
}

// SuccessWithMeta writes a list payload together with its pagination
// counters.
func SuccessWithMeta(c *gin.Context, status int, payload any, meta *Meta) {
	c.JSON(status, Response{Success: true, Data: payload, Meta: meta})
}

// Error maps err onto the envelope. Values that are not an AppError are
// reported as a generic internal error; their text stays server-side.
func Error(c *gin.Context, err error) {
	appErr := apperrors.FromError(err)
	if appErr == nil {
		appErr = apperrors.ErrInternalServer
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}

	c.JSON(status, Response{Success: false, Message: appErr.Message, Code: appErr.Code})
}
