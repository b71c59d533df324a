package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"concierge/api/internal/export"
	"concierge/api/internal/search"
	"concierge/api/internal/shardsync"
	"concierge/api/internal/store"
	"concierge/api/internal/tree"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/templates" {
		items, err := s.service.ListTemplates(r.Context())
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": items})
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "hotels" {
		s.handleHotels(w, r, segments[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleHotels(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()

	// /api/hotels
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			summaries, err := s.service.ListHotels(ctx)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"hotels": summaries})
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				TemplateKey string `json:"templateKey"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			root, err := s.service.CreateHotel(ctx, strings.TrimSpace(body.Name), body.TemplateKey)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"tree": root})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	hotelID := rest[0]
	rest = rest[1:]

	// /api/hotels/{id}
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
				filtered, err := s.service.FilterTree(ctx, hotelID, q)
				if err != nil {
					s.writeMappedError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"tree": filtered, "query": q})
				return
			}
			root, err := s.service.LoadTree(ctx, hotelID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"tree":      root,
				"saveState": s.service.SaveState(hotelID),
			})
		case http.MethodDelete:
			if err := s.service.DeleteHotel(ctx, hotelID); err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case rest[0] == "stats" && r.Method == http.MethodGet:
		stats, err := s.service.TreeStats(ctx, hotelID)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)

	case rest[0] == "nodes":
		s.handleNodes(w, r, hotelID, rest[1:])

	case rest[0] == "save" && r.Method == http.MethodPost:
		err := s.service.SaveNow(ctx, hotelID)
		if errors.Is(err, shardsync.ErrDegraded) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "degraded": true})
			return
		}
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "degraded": false})

	case rest[0] == "save-status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"state": s.service.SaveState(hotelID)})

	case rest[0] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, hotelID)

	case rest[0] == "history" && r.Method == http.MethodGet:
		limit := 50
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return
			}
			limit = parsed
		}
		history, err := s.service.History(ctx, hotelID, limit)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})

	case rest[0] == "restore" && r.Method == http.MethodPost:
		var body struct {
			Hash string `json:"hash"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Hash) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "hash is required", nil)
			return
		}
		root, err := s.service.RestoreRevision(ctx, hotelID, body.Hash)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree": root})

	case rest[0] == "assistant" && r.Method == http.MethodPost:
		var body struct {
			Instruction string `json:"instruction"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Instruction) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "instruction is required", nil)
			return
		}
		message, results, err := s.service.AssistantApply(ctx, hotelID, body.Instruction)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": message, "results": results})

	case rest[0] == "snapshots":
		s.handleSnapshots(w, r, hotelID, rest[1:])

	case rest[0] == "template" && r.Method == http.MethodPost:
		var body struct {
			Label string `json:"label"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		info, err := s.service.SaveTemplate(ctx, hotelID, body.Label)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, info)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// nodePatchBody is the wire form of tree.Patch; extra stays raw JSON rather
// than base64.
type nodePatchBody struct {
	Kind        *string           `json:"kind"`
	Name        *string           `json:"name"`
	Value       *string           `json:"value"`
	Description *string           `json:"description"`
	Attributes  *[]tree.Attribute `json:"attributes"`
	SchemaType  *tree.SchemaType  `json:"schemaType"`
	Extra       json.RawMessage   `json:"extra"`
}

func (b nodePatchBody) toPatch() tree.Patch {
	patch := tree.Patch{
		Kind:        b.Kind,
		Name:        b.Name,
		Value:       b.Value,
		Description: b.Description,
		Attributes:  b.Attributes,
		SchemaType:  b.SchemaType,
	}
	if len(b.Extra) > 0 {
		extra := []byte(b.Extra)
		patch.Extra = &extra
	}
	return patch
}

func (s *HTTPServer) handleNodes(w http.ResponseWriter, r *http.Request, hotelID string, rest []string) {
	ctx := r.Context()

	// POST /api/hotels/{id}/nodes
	if len(rest) == 0 {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		var body struct {
			ParentID string     `json:"parentId"`
			Node     *tree.Node `json:"node"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		root, err := s.service.InsertNode(ctx, hotelID, body.ParentID, body.Node)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree": root})
		return
	}

	nodeID := rest[0]
	rest = rest[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPut:
			var body nodePatchBody
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			root, err := s.service.UpdateNode(ctx, hotelID, nodeID, body.toPatch())
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tree": root})
		case http.MethodDelete:
			root, err := s.service.DeleteNode(ctx, hotelID, nodeID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tree": root})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[0] == "move" && r.Method == http.MethodPost {
		var body struct {
			TargetID string `json:"targetId"`
			Position string `json:"position"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		pos := tree.Position(body.Position)
		if pos != tree.Before && pos != tree.After && pos != tree.Inside {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "position must be before, after or inside", nil)
			return
		}
		root, err := s.service.MoveNode(ctx, hotelID, nodeID, body.TargetID, pos)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree": root})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSnapshots(w http.ResponseWriter, r *http.Request, hotelID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListSnapshots(ctx, hotelID)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": items})
		case http.MethodPost:
			var body struct {
				Label string `json:"label"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			info, err := s.service.TakeSnapshot(ctx, hotelID, body.Label)
			if err != nil {
				s.writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, info)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if rest[0] == "restore" && r.Method == http.MethodPost {
		var body struct {
			Key string `json:"key"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Key) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "key is required", nil)
			return
		}
		root, err := s.service.RestoreSnapshot(ctx, hotelID, body.Key)
		if err != nil {
			s.writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tree": root})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	hotelID := strings.TrimSpace(r.URL.Query().Get("hotelId"))
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		offset = parsed
	}

	response := s.service.Search(search.Query{
		Text:          q,
		FilterHotelID: hotelID,
		Limit:         limit,
		Offset:        offset,
	})
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, hotelID string) {
	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatJSON
	}
	version := strings.TrimSpace(r.URL.Query().Get("version"))

	result, err := s.service.Export(r.Context(), hotelID, version, format)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, export.ErrContentUnavailable) {
		return http.StatusNotFound, "NOT_FOUND", "Nothing to export", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export dependencies missing", nil
	}
	if errors.Is(err, shardsync.ErrDegraded) {
		return http.StatusServiceUnavailable, "DEGRADED", "Saved locally; remote store unreachable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
