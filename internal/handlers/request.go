package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/videostream/backend/internal/auth"
	"github.com/videostream/backend/internal/metrics"
	"github.com/videostream/backend/internal/storage"
)

// DefaultMaxUploadBytes bounds multipart bodies when no limit is configured.
const DefaultMaxUploadBytes int64 = 512 << 20

const multipartMemory = 32 << 20

var (
	requestValidator = newValidator()
	textPolicy       = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return v
}

// decodeAndValidate decodes a single JSON object into dst, rejecting unknown fields and
// trailing data, then applies the struct's validate tags.
func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return badRequest("invalid JSON body")
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return badRequest("invalid JSON body")
	}
	return validate(dst)
}

func validate(dst any) error {
	err := requestValidator.Struct(dst)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return badRequest("invalid request payload")
	}

	first := validationErrors[0]
	field := first.Field()
	switch first.Tag() {
	case "required":
		return badRequest(fmt.Sprintf("%s is required", field))
	case "email":
		return badRequest("invalid email format")
	case "min":
		return badRequest(fmt.Sprintf("%s must be at least %s characters", field, first.Param()))
	case "max":
		return badRequest(fmt.Sprintf("%s must be at most %s characters", field, first.Param()))
	case "numeric":
		return badRequest(fmt.Sprintf("%s must contain only digits", field))
	case "alphanum":
		return badRequest(fmt.Sprintf("%s must contain only letters and digits", field))
	default:
		return badRequest(fmt.Sprintf("invalid %s", field))
	}
}

// pathID reads a uuid path parameter.
func pathID(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", badRequest(fmt.Sprintf("invalid %s", name))
	}
	return id.String(), nil
}

// viewerID returns the authenticated user id, or "" for anonymous requests.
func viewerID(ctx context.Context) string {
	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return principal.UserID
}

// sanitizeText strips all markup from user supplied text and trims it.
func sanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(value)))
}

// parseMultipart bounds the body and parses the form.
func parseMultipart(w http.ResponseWriter, r *http.Request, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apiError{Status: http.StatusRequestEntityTooLarge, Message: "upload exceeds size limit"}
		case errors.Is(err, http.ErrNotMultipart):
			return badRequest("expected multipart form data")
		default:
			return badRequest("invalid multipart form")
		}
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func formValue(r *http.Request, name string) string {
	if r.MultipartForm == nil {
		return ""
	}
	values := r.MultipartForm.Value[name]
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// optionalFormValue distinguishes an absent field (nil) from an empty one.
func optionalFormValue(r *http.Request, name string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[name]
	if !ok || len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}

func formFile(r *http.Request, name string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	files := r.MultipartForm.File[name]
	if len(files) == 0 || files[0].Size == 0 {
		return nil
	}
	return files[0]
}

// uploadFile streams a form file to storage under prefix and returns its location.
func uploadFile(ctx context.Context, store MediaStorage, prefix string, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open %s upload: %w", prefix, err)
	}
	defer file.Close()

	location, err := store.Save(ctx, storage.ObjectKey(prefix, header.Filename), file)
	metrics.ObserveUpload(prefix, err)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", prefix, err)
	}
	return location, nil
}

// stagedFile is a multipart upload copied to a local temp file so external tools can read it.
type stagedFile struct {
	header *multipart.FileHeader
	path   string
}

func stageFile(header *multipart.FileHeader) (*stagedFile, error) {
	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "videostream-*"+strings.ToLower(filepath.Ext(header.Filename)))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return nil, fmt.Errorf("close staged upload: %w", err)
	}
	return &stagedFile{header: header, path: dst.Name()}, nil
}

func (s *stagedFile) upload(ctx context.Context, store MediaStorage, prefix string) (string, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("open staged upload: %w", err)
	}
	defer file.Close()

	location, err := store.Save(ctx, storage.ObjectKey(prefix, s.header.Filename), file)
	metrics.ObserveUpload(prefix, err)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", prefix, err)
	}
	return location, nil
}

func (s *stagedFile) remove() {
	if s != nil {
		os.Remove(s.path)
	}
}
