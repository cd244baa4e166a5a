// handlers_export.go - CSV export job and listing endpoints
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grid-monitor/dashboard/internal/export"
)

// HandleStartExport handles POST /api/export/:kind
//
// Kicks off an asynchronous export job against the backend and returns
// 202 with the job descriptor; the dashboard polls the job endpoint.
func (h *Handler) HandleStartExport(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	kind := export.Kind(c.Param("kind"))
	if kind != export.KindVoltage && kind != export.KindFaults {
		return RespondWithError(c, NewValidationError("kind"))
	}

	hours := queryInt(c, "hours", 24)
	job := h.exports.StartJob(st.Token(), kind, hours)
	return c.JSON(http.StatusAccepted, job)
}

// HandleGetExportJob handles GET /api/export/jobs/:id
func (h *Handler) HandleGetExportJob(c echo.Context) error {
	if _, apiErr := h.session(c); apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	id := c.Param("id")
	job, ok := h.exports.GetJob(id)
	if !ok {
		return RespondWithError(c, NewNotFoundError("export job", id))
	}
	return c.JSON(http.StatusOK, job)
}

// HandleListExportJobs handles GET /api/export/jobs
func (h *Handler) HandleListExportJobs(c echo.Context) error {
	if _, apiErr := h.session(c); apiErr != nil {
		return RespondWithError(c, apiErr)
	}
	return c.JSON(http.StatusOK, h.exports.ListJobs())
}

// HandleListExports handles GET /api/export/files
//
// Passes through the backend's object-store listing of finished exports.
func (h *Handler) HandleListExports(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	listing, err := h.rest.ListExports(c.Request().Context(), st.Token())
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, listing)
}

// HandleExportURL handles GET /api/export/download
func (h *Handler) HandleExportURL(c echo.Context) error {
	st, apiErr := h.session(c)
	if apiErr != nil {
		return RespondWithError(c, apiErr)
	}

	key := c.QueryParam("key")
	if key == "" {
		return RespondWithError(c, NewValidationError("key"))
	}

	presigned, err := h.rest.ExportURL(c.Request().Context(), st.Token(), key)
	if err != nil {
		return RespondWithError(c, FromFetchError(err))
	}
	return c.JSON(http.StatusOK, presigned)
}
