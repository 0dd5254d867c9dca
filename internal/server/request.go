package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Tomlord1122/todo-files-backend/internal/domain"
	"github.com/Tomlord1122/todo-files-backend/internal/service"
)

const (
	maxJSONBodySize = 1 << 20
	// multipartMemory is kept in RAM while parsing; larger parts spill to temp files.
	multipartMemory = 8 << 20
	// multipartOverhead allows room for boundaries and the text fields next to the file.
	multipartOverhead = 1 << 20
)

// allowedUploadTypes maps each accepted extension to the MIME types a client
// may declare for it.
var allowedUploadTypes = map[string][]string{
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	".txt":  {"text/plain"},
}

// requestError is a client error detected while reading a request body.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// decodeJSONBody decodes a single JSON object into dst, rejecting unknown fields.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxError):
		return badRequest("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("Request body contains badly-formed JSON")
	case errors.As(err, &unmarshalTypeError):
		return badRequest("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return badRequest("Request body contains unknown field %s", fieldName)
	case errors.Is(err, io.EOF):
		return badRequest("Request body must not be empty")
	case errors.As(err, &maxBytesError):
		return badRequest("Request body must not be larger than %d bytes", maxBytesError.Limit)
	default:
		return err
	}
}

// parseCreateRequest accepts multipart/form-data (title, description, file),
// a urlencoded form or a JSON body.
func (s *Server) parseCreateRequest(w http.ResponseWriter, r *http.Request) (service.CreateTodoRequest, error) {
	var req service.CreateTodoRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		return s.parseMultipartCreate(w, r)
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		if err := r.ParseForm(); err != nil {
			return req, badRequest("Invalid form body")
		}
		req.Title = r.PostForm.Get("title")
		req.Description = r.PostForm.Get("description")
		return req, nil
	case "application/json", "":
		err := decodeJSONBody(w, r, &req)
		return req, err
	default:
		return req, &requestError{
			status:  http.StatusUnsupportedMediaType,
			message: fmt.Sprintf("Unsupported content type %q", mediaType),
		}
	}
}

func (s *Server) parseMultipartCreate(w http.ResponseWriter, r *http.Request) (service.CreateTodoRequest, error) {
	var req service.CreateTodoRequest

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			return req, badRequest("File too large (max %d bytes)", s.maxUploadSize)
		}
		return req, badRequest("Invalid multipart form")
	}
	form := r.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	req.Title = firstValue(form.Value["title"])
	req.Description = firstValue(form.Value["description"])

	headers := form.File["file"]
	if len(headers) == 0 || (headers[0].Filename == "" && headers[0].Size == 0) {
		return req, nil
	}
	fh := headers[0]

	if fh.Size > s.maxUploadSize {
		return req, badRequest("File too large (max %d bytes)", s.maxUploadSize)
	}

	// file_name is stored as sent, so it has to fit its column
	if utf8.RuneCountInString(fh.Filename) > domain.MaxFileNameLength {
		return req, badRequest("File name must be at most %d characters", domain.MaxFileNameLength)
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	allowed, ok := allowedUploadTypes[ext]
	if !ok {
		return req, badRequest("File type %q is not allowed", ext)
	}
	declared, _, err := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if err != nil || !slices.Contains(allowed, strings.ToLower(declared)) {
		return req, badRequest("Content type %q is not allowed for %s files", fh.Header.Get("Content-Type"), ext)
	}

	f, err := fh.Open()
	if err != nil {
		return req, fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return req, fmt.Errorf("read uploaded file: %w", err)
	}

	req.File = &service.Attachment{
		Name:        fh.Filename,
		ContentType: declared,
		Data:        data,
	}
	return req, nil
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
