package http

import (
	"SLINK-Backend/internal/domain"
	"SLINK-Backend/internal/repository"
	"SLINK-Backend/internal/service"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const (
	// maxBulkLinks максимальное количество ссылок в одном bulk запросе
	maxBulkLinks = 100
	// maxBodyBytes ограничение размера тела запроса (встроенные изображения)
	maxBodyBytes = 10 << 20

	userIDHeader = "X-User-ID"
)

// LinksHandler обработчик для работы со ссылками
type LinksHandler struct {
	links    *service.LinkService
	storage  repository.Storage
	validate *validator.Validate
	log      *zap.Logger
}

// NewLinksHandler создает новый обработчик ссылок
func NewLinksHandler(links *service.LinkService, storage repository.Storage, log *zap.Logger) *LinksHandler {
	return &LinksHandler{
		links:    links,
		storage:  storage,
		validate: validator.New(),
		log:      log,
	}
}

// LinkResponse ссылка в ответе API
type LinkResponse struct {
	*domain.Link
	ShortLink   string   `json:"shortLink"`
	TagIDs      []string `json:"tagIds"`
	HasPassword bool     `json:"hasPassword"`
}

// BulkLinkResponse элемент ответа bulk создания, Index - позиция в запросе
type BulkLinkResponse struct {
	Index int            `json:"index"`
	Link  *LinkResponse  `json:"link,omitempty"`
	TagID *string        `json:"tagId,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error   string               `json:"error"`
	Code    string               `json:"code,omitempty"`
	Payload *service.LinkPayload `json:"payload,omitempty"`
}

// ArchiveRequest запрос на архивацию ссылки
type ArchiveRequest struct {
	Archived *bool `json:"archived" validate:"required"`
}

// TransferRequest запрос на перенос ссылки в другой проект
type TransferRequest struct {
	NewProjectID string `json:"newProjectId" validate:"required"`
}

// CountResponse ответ на запрос количества ссылок
type CountResponse struct {
	Count  *int64           `json:"count,omitempty"`
	Groups map[string]int64 `json:"groups,omitempty"`
}

// CreateLink создает новую короткую ссылку
//
//	@Summary		Create a short link
//	@Description	Validate the payload and create a link in the canonical and projection stores
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Param			projectId	query		string				false	"Project ID"
//	@Param			request		body		service.LinkPayload	true	"Link payload"
//	@Success		201			{object}	LinkResponse
//	@Success		202			{object}	LinkResponse	"Created, projection out of sync"
//	@Failure		400			{object}	ErrorResponse
//	@Failure		403			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Failure		422			{object}	ErrorResponse
//	@Router			/api/links [post]
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var payload service.LinkPayload
	if !h.decode(w, r, &payload) {
		return
	}

	project, ok := h.project(w, r, false)
	if !ok {
		return
	}

	link, err := h.links.CreateLink(r.Context(), &payload, project, userID(r))
	h.writeLinkResult(w, link, err, http.StatusCreated)
}

// BulkCreateLinks создает несколько ссылок за один запрос
//
//	@Summary		Create links in bulk
//	@Description	Create up to 100 links. Rejected payloads are returned with their errors, duplicate keys are skipped
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Param			projectId	query		string					true	"Project ID"
//	@Param			request		body		[]service.LinkPayload	true	"Link payloads"
//	@Success		200			{array}		BulkLinkResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/links/bulk [post]
func (h *LinksHandler) BulkCreateLinks(w http.ResponseWriter, r *http.Request) {
	var payloads []*service.LinkPayload
	if !h.decode(w, r, &payloads) {
		return
	}
	if err := h.validate.Var(payloads, "required,min=1,max="+strconv.Itoa(maxBulkLinks)+",dive,required"); err != nil {
		writeError(w, "Request must contain between 1 and "+strconv.Itoa(maxBulkLinks)+" links", http.StatusBadRequest)
		return
	}

	project, ok := h.project(w, r, true)
	if !ok {
		return
	}

	results, err := h.links.BulkCreateLinks(r.Context(), payloads, project, userID(r))
	if err != nil && !errors.Is(err, service.ErrProjectionSync) {
		h.writeServiceError(w, err)
		return
	}
	if err != nil {
		h.log.Warn("bulk links created without projection", zap.Error(err))
		w.Header().Set("X-Projection-Sync", "failed")
	}

	response := make([]BulkLinkResponse, 0, len(results))
	for _, res := range results {
		item := BulkLinkResponse{Index: res.Index, TagID: res.TagID}
		if res.Link != nil {
			item.Link = newLinkResponse(res.Link)
		}
		if res.Error != nil {
			item.Error = newErrorResponse(res.Error)
		}
		response = append(response, item)
	}
	writeJSON(w, response, http.StatusOK)
}

// ListLinks возвращает страницу ссылок проекта
//
//	@Summary		List links
//	@Description	Return a page of 100 links sorted descending by createdAt, clicks or lastClicked
//	@Tags			Links
//	@Produce		json
//	@Param			projectId		query		string	true	"Project ID"
//	@Param			domain			query		string	false	"Domain"
//	@Param			tagIds			query		string	false	"Comma separated tag IDs"
//	@Param			search			query		string	false	"Search in key and URL"
//	@Param			userId			query		string	false	"Creator"
//	@Param			showArchived	query		bool	false	"Include archived links"
//	@Param			sort			query		string	false	"createdAt | clicks | lastClicked"
//	@Param			page			query		int		false	"Page, starting at 1"
//	@Success		200				{array}		LinkResponse
//	@Failure		400				{object}	ErrorResponse
//	@Router			/api/links [get]
func (h *LinksHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	filter, ok := h.filter(w, r, project)
	if !ok {
		return
	}

	links, err := h.links.ListLinks(r.Context(), filter)
	if err != nil {
		h.log.Error("failed to list links", zap.String("project_id", project.ID), zap.Error(err))
		writeError(w, "Failed to retrieve links", http.StatusInternalServerError)
		return
	}

	response := make([]*LinkResponse, 0, len(links))
	for _, link := range links {
		response = append(response, newLinkResponse(link))
	}
	writeJSON(w, response, http.StatusOK)
}

// CountLinks возвращает количество ссылок, опционально сгруппированное
//
//	@Summary		Count links
//	@Tags			Links
//	@Produce		json
//	@Param			projectId	query		string	true	"Project ID"
//	@Param			groupBy		query		string	false	"domain | tagId"
//	@Success		200			{object}	CountResponse
//	@Failure		400			{object}	ErrorResponse
//	@Router			/api/links/count [get]
func (h *LinksHandler) CountLinks(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	filter, ok := h.filter(w, r, project)
	if !ok {
		return
	}

	if groupBy := r.URL.Query().Get("groupBy"); groupBy != "" {
		counts, err := h.links.CountLinksGrouped(r.Context(), filter, domain.LinkGroupBy(groupBy))
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		writeJSON(w, CountResponse{Groups: counts}, http.StatusOK)
		return
	}

	count, err := h.links.CountLinks(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, CountResponse{Count: &count}, http.StatusOK)
}

// GetLink возвращает ссылку по ID
//
//	@Summary		Get a link
//	@Tags			Links
//	@Produce		json
//	@Param			id			path		string	true	"Link ID"
//	@Param			projectId	query		string	true	"Project ID"
//	@Success		200			{object}	LinkResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/links/{id} [get]
func (h *LinksHandler) GetLink(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	link, err := h.links.GetLink(r.Context(), r.PathValue("id"), project)
	h.writeLinkResult(w, link, err, http.StatusOK)
}

// EditLink обновляет ссылку
//
//	@Summary		Edit a link
//	@Description	Revalidate the merged payload; moving the link to another key or domain rewrites the projection
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Link ID"
//	@Param			projectId	query		string				true	"Project ID"
//	@Param			request		body		service.LinkPayload	true	"Link payload"
//	@Success		200			{object}	LinkResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/api/links/{id} [patch]
func (h *LinksHandler) EditLink(w http.ResponseWriter, r *http.Request) {
	var payload service.LinkPayload
	if !h.decode(w, r, &payload) {
		return
	}
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	link, err := h.links.EditLink(r.Context(), r.PathValue("id"), &payload, project, userID(r))
	h.writeLinkResult(w, link, err, http.StatusOK)
}

// DeleteLink удаляет ссылку
//
//	@Summary		Delete a link
//	@Tags			Links
//	@Produce		json
//	@Param			id			path		string	true	"Link ID"
//	@Param			projectId	query		string	true	"Project ID"
//	@Success		200			{object}	map[string]string
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/links/{id} [delete]
func (h *LinksHandler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}

	link, err := h.links.DeleteLink(r.Context(), r.PathValue("id"), project)
	if err != nil && !errors.Is(err, service.ErrProjectionSync) {
		h.writeServiceError(w, err)
		return
	}
	if err != nil {
		h.log.Warn("link deleted without projection", zap.String("link_id", link.ID), zap.Error(err))
		writeJSON(w, map[string]string{"id": link.ID}, http.StatusAccepted)
		return
	}
	writeJSON(w, map[string]string{"id": link.ID}, http.StatusOK)
}

// ArchiveLink архивирует или разархивирует ссылку
//
//	@Summary		Archive or unarchive a link
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Link ID"
//	@Param			projectId	query		string			true	"Project ID"
//	@Param			request		body		ArchiveRequest	true	"Archive flag"
//	@Success		200			{object}	LinkResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/links/{id}/archive [post]
func (h *LinksHandler) ArchiveLink(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if !h.decode(w, r, &req) || !h.check(w, &req) {
		return
	}
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	link, err := h.links.ArchiveLink(r.Context(), r.PathValue("id"), project, *req.Archived)
	h.writeLinkResult(w, link, err, http.StatusOK)
}

// TransferLink переносит ссылку в другой проект
//
//	@Summary		Transfer a link to another project
//	@Tags			Links
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string			true	"Link ID"
//	@Param			projectId	query		string			true	"Project ID"
//	@Param			request		body		TransferRequest	true	"Target project"
//	@Success		200			{object}	LinkResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/links/{id}/transfer [post]
func (h *LinksHandler) TransferLink(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.decode(w, r, &req) || !h.check(w, &req) {
		return
	}
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	link, err := h.links.TransferLink(r.Context(), r.PathValue("id"), project, req.NewProjectID)
	h.writeLinkResult(w, link, err, http.StatusOK)
}

// SyncLink перезаписывает запись проекции из канонической ссылки
//
//	@Summary		Rewrite the redirect record of a link
//	@Tags			Links
//	@Produce		json
//	@Param			id			path		string	true	"Link ID"
//	@Param			projectId	query		string	true	"Project ID"
//	@Success		200			{object}	LinkResponse
//	@Failure		404			{object}	ErrorResponse
//	@Router			/api/links/{id}/sync [post]
func (h *LinksHandler) SyncLink(w http.ResponseWriter, r *http.Request) {
	project, ok := h.project(w, r, true)
	if !ok {
		return
	}
	link, err := h.links.SyncLink(r.Context(), r.PathValue("id"), project)
	h.writeLinkResult(w, link, err, http.StatusOK)
}

// Helper methods

func (h *LinksHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Debug("failed to decode request", zap.Error(err))
		writeError(w, "Invalid JSON format", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *LinksHandler) check(w http.ResponseWriter, req any) bool {
	if err := h.validate.Struct(req); err != nil {
		writeError(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// project загружает проект из query параметра projectId
func (h *LinksHandler) project(w http.ResponseWriter, r *http.Request, required bool) (*domain.Project, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if id == "" {
		if required {
			writeError(w, "projectId is required", http.StatusBadRequest)
			return nil, false
		}
		return nil, true
	}

	project, err := h.storage.GetProject(r.Context(), id)
	if errors.Is(err, repository.ErrProjectNotFound) {
		writeError(w, "Project not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.log.Error("failed to load project", zap.String("project_id", id), zap.Error(err))
		writeError(w, "Failed to load project", http.StatusInternalServerError)
		return nil, false
	}
	return project, true
}

func (h *LinksHandler) filter(w http.ResponseWriter, r *http.Request, project *domain.Project) (domain.LinkFilter, bool) {
	q := r.URL.Query()
	filter := domain.LinkFilter{
		ProjectID: &project.ID,
		Sort:      domain.SortCreatedAt,
		Page:      1,
	}

	if v := q.Get("domain"); v != "" {
		filter.Domain = &v
	}
	if v := q.Get("search"); v != "" {
		filter.Search = &v
	}
	if v := q.Get("userId"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("tagIds"); v != "" {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.TagIDs = append(filter.TagIDs, id)
			}
		}
	}
	if v := q.Get("showArchived"); v != "" {
		show, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "Invalid showArchived", http.StatusBadRequest)
			return filter, false
		}
		filter.ShowArchived = show
	}
	if v := q.Get("sort"); v != "" {
		switch s := domain.LinkSort(v); s {
		case domain.SortCreatedAt, domain.SortClicks, domain.SortLastClicked:
			filter.Sort = s
		default:
			writeError(w, "Invalid sort", http.StatusBadRequest)
			return filter, false
		}
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			writeError(w, "Invalid page", http.StatusBadRequest)
			return filter, false
		}
		filter.Page = page
	}
	return filter, true
}

// writeLinkResult пишет ссылку либо ошибку. Если каноническая запись
// сохранена, а проекция нет, ссылка возвращается со статусом 202.
func (h *LinksHandler) writeLinkResult(w http.ResponseWriter, link *domain.Link, err error, status int) {
	if err != nil && link != nil && errors.Is(err, service.ErrProjectionSync) {
		h.log.Warn("link saved without projection", zap.String("link_id", link.ID), zap.Error(err))
		w.Header().Set("X-Projection-Sync", "failed")
		writeJSON(w, newLinkResponse(link), http.StatusAccepted)
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, newLinkResponse(link), status)
}

func (h *LinksHandler) writeServiceError(w http.ResponseWriter, err error) {
	if le, ok := service.AsLinkError(err); ok {
		writeJSON(w, newErrorResponse(le), statusFor(le.Code))
		return
	}
	h.log.Error("link operation failed", zap.Error(err))
	writeError(w, "Internal server error", http.StatusInternalServerError)
}

func statusFor(code service.Code) int {
	switch code {
	case service.CodeBadRequest:
		return http.StatusBadRequest
	case service.CodeUnprocessableEntity:
		return http.StatusUnprocessableEntity
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeConflict:
		return http.StatusConflict
	case service.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newErrorResponse(le *service.LinkError) *ErrorResponse {
	return &ErrorResponse{Error: le.Message, Code: string(le.Code), Payload: le.Payload}
}

func newLinkResponse(link *domain.Link) *LinkResponse {
	return &LinkResponse{
		Link:        link,
		ShortLink:   "https://" + link.Domain + "/" + link.Key,
		TagIDs:      link.TagIDs(),
		HasPassword: link.HasPassword(),
	}
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(userIDHeader))
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message}, statusCode)
}
