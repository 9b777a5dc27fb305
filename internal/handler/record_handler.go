package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/internal/spreadsheet"
	"fleetops/pkg/pagination"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

// RecordHandler serves one dynamic record category. Import and payslip generation are
// registered only when their services are set.
type RecordHandler struct {
	records   service.RecordService
	catalog   service.CatalogService
	importer  service.ImportService
	payslips  service.PayslipService
	auth      *middleware.Auth
	resource  string
	maxUpload int64
}

type RecordHandlerOption func(*RecordHandler)

// WithImport enables POST /import for the category
func WithImport(importer service.ImportService, maxUpload int64) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.importer = importer
		h.maxUpload = maxUpload
	}
}

// WithPayslipGeneration enables POST /generate for the category
func WithPayslipGeneration(payslips service.PayslipService) RecordHandlerOption {
	return func(h *RecordHandler) {
		h.payslips = payslips
	}
}

// NewRecordHandler builds a handler whose permissions are "<resource>.<action>"
func NewRecordHandler(records service.RecordService, catalog service.CatalogService, auth *middleware.Auth, resource string, opts ...RecordHandlerOption) *RecordHandler {
	h := &RecordHandler{records: records, catalog: catalog, auth: auth, resource: resource}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *RecordHandler) perm(action string) gin.HandlerFunc {
	return h.auth.RequirePermission(h.resource + "." + action)
}

func (h *RecordHandler) RegisterRoutes(router *gin.RouterGroup, path string) {
	group := router.Group(path)
	{
		group.GET("", h.perm("view"), h.List)
		group.GET("/fields", h.perm("view"), h.Fields)
		group.DELETE("/fields/:key", h.perm("delete"), h.DeleteField)
		group.POST("/bulk-delete", h.perm("delete"), h.BulkDelete)
		group.GET("/:id", h.perm("view"), h.Get)
		group.PATCH("/:id", h.perm("update"), h.Update)
		group.DELETE("/:id", h.perm("delete"), h.Delete)

		if service.ModeFor(h.records.Category()) == service.ModeExplicit {
			group.PATCH("/fields/:key", h.perm("update"), h.UpdateField)
		}
		if h.importer != nil {
			group.POST("/import", h.perm("import"), h.Import)
			group.GET("/partitions", h.perm("view"), h.ListPartitions)
			group.DELETE("/partitions", h.perm("delete"), h.DeletePartition)
		}
		if h.payslips != nil {
			group.POST("/generate", h.perm("generate"), h.Generate)
		}
	}
}

// List returns a filtered, sorted page of records with their field descriptors
// @Summary      List records
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Items per page (default 20)"
// @Param        year        query     int     false  "Partition year"
// @Param        month       query     string  false  "Partition month"
// @Param        search      query     string  false  "Substring of the name field"
// @Param        sort_by     query     string  false  "Column or field key"
// @Param        sort_order  query     string  false  "asc or desc"
// @Success      200         {object}  response.Response{data=service.RecordListResponse}
// @Failure      400         {object}  response.Response
// @Router       /api/finance [get]
// @Router       /api/payslips [get]
func (h *RecordHandler) List(c *gin.Context) {
	q := service.ListRecordsQuery{
		Month:     c.Query("month"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if raw := c.Query("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid year")
			return
		}
		q.Year = year
	}

	result, err := h.records.List(c.Request.Context(), q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Get returns one record
// @Summary      Get record
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Record ID"
// @Success      200  {object}  response.Response{data=service.RecordResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/finance/{id} [get]
// @Router       /api/payslips/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	record, err := h.records.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, record))
}

// Update merges the posted keys into the record's fields
// @Summary      Update record fields
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      int     true  "Record ID"
// @Param        payload  body      object  true  "Field patch"
// @Success      200      {object}  response.Response{data=service.RecordResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/finance/{id} [patch]
// @Router       /api/payslips/{id} [patch]
func (h *RecordHandler) Update(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	record, err := h.records.Update(requestContext(c), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, record))
}

// Delete removes one record
// @Summary      Delete record
// @Tags         records
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Record ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/finance/{id} [delete]
// @Router       /api/payslips/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	id, ok := parseRecordID(c)
	if !ok {
		return
	}

	if err := h.records.Delete(requestContext(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.SuccessWithMessage(http.StatusOK, "Record deleted successfully", nil))
}

type bulkDeleteRequest struct {
	IDs []uint `json:"ids" binding:"required"`
}

// BulkDelete deletes the given ids and reports which were not found
// @Summary      Bulk delete records
// @Tags         records
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      bulkDeleteRequest  true  "Record IDs"
// @Success      200      {object}  response.Response{data=service.BulkDeleteResult}
// @Failure      400      {object}  response.Response
// @Router       /api/finance/bulk-delete [post]
// @Router       /api/payslips/bulk-delete [post]
func (h *RecordHandler) BulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.records.BulkDelete(requestContext(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "Records deleted"
	if len(result.NotFoundIDs) > 0 {
		msg = "Some records were not found"
	}
	c.JSON(http.StatusOK, response.SuccessWithMessage(http.StatusOK, msg, result))
}

// Fields returns the category's field descriptors
// @Summary      List fields
// @Tags         fields
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.FieldDescriptor}
// @Router       /api/finance/fields [get]
// @Router       /api/payslips/fields [get]
func (h *RecordHandler) Fields(c *gin.Context) {
	fields, err := h.records.Fields(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, fields))
}

// UpdateField corrects a declared field descriptor
// @Summary      Update field descriptor
// @Tags         fields
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        key      path      string                      true  "Field key"
// @Param        payload  body      service.UpdateFieldRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=model.FieldDescriptor}
// @Failure      404      {object}  response.Response
// @Router       /api/finance/fields/{key} [patch]
func (h *RecordHandler) UpdateField(c *gin.Context) {
	var req service.UpdateFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	field, err := h.catalog.UpdateDescriptor(requestContext(c), h.records.Category(), c.Param("key"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, field))
}

// DeleteField strips a key from every record of the category
// @Summary      Delete field
// @Tags         fields
// @Produce      json
// @Security     BearerAuth
// @Param        key  path      string  true  "Field key"
// @Success      200  {object}  response.Response{data=service.DeleteFieldResult}
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/finance/fields/{key} [delete]
// @Router       /api/payslips/fields/{key} [delete]
func (h *RecordHandler) DeleteField(c *gin.Context) {
	result, err := h.records.DeleteField(requestContext(c), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Import loads a CSV or XLSX sheet into a (year, month) partition
// @Summary      Import ledger sheet
// @Tags         finance
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file   formData  file    true  "CSV or XLSX sheet"
// @Param        year   formData  int     true  "Partition year"
// @Param        month  formData  string  true  "Partition month"
// @Success      201    {object}  response.Response{data=service.ImportResult}
// @Failure      400    {object}  response.Response
// @Failure      413    {object}  response.Response
// @Router       /api/finance/import [post]
func (h *RecordHandler) Import(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, response.Error(http.StatusRequestEntityTooLarge, "Uploaded file is too large"))
			return
		}
		badRequest(c, "A spreadsheet file is required")
		return
	}

	year, err := strconv.Atoi(c.PostForm("year"))
	if err != nil {
		badRequest(c, "Invalid year")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "Unable to read uploaded file")
		return
	}
	defer f.Close()

	sheet, err := spreadsheet.Parse(fileHeader.Filename, f)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.importer.Import(requestContext(c), service.ImportRequest{
		Year:     year,
		Month:    c.PostForm("month"),
		FileName: filepath.Base(fileHeader.Filename),
		Sheet:    sheet,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	msg := "Import completed"
	if result.RejectedCount > 0 {
		msg = "Import completed with rejected rows"
	}
	c.JSON(http.StatusCreated, response.SuccessWithMessage(http.StatusCreated, msg, result))
}

// ListPartitions summarizes each (year, month) partition
// @Summary      List partitions
// @Tags         finance
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.PartitionSummary}
// @Router       /api/finance/partitions [get]
func (h *RecordHandler) ListPartitions(c *gin.Context) {
	partitions, err := h.records.ListPartitions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, partitions))
}

// DeletePartition removes every record of a (year, month) partition
// @Summary      Delete partition
// @Tags         finance
// @Produce      json
// @Security     BearerAuth
// @Param        year   query     int     true  "Partition year"
// @Param        month  query     string  true  "Partition month"
// @Success      200    {object}  response.Response{data=object}
// @Failure      400    {object}  response.Response
// @Router       /api/finance/partitions [delete]
func (h *RecordHandler) DeletePartition(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		badRequest(c, "Invalid year")
		return
	}

	deleted, err := h.records.DeletePartition(requestContext(c), year, c.Query("month"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": deleted}))
}

// Generate creates payslips for a ledger partition
// @Summary      Generate payslips
// @Tags         payslips
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.GeneratePayslipsRequest  true  "Partition"
// @Success      201      {object}  response.Response{data=service.GeneratePayslipsResult}
// @Failure      404      {object}  response.Response
// @Router       /api/payslips/generate [post]
func (h *RecordHandler) Generate(c *gin.Context) {
	var req service.GeneratePayslipsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	result, err := h.payslips.GeneratePayslips(requestContext(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}
