package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/registry"
)

// Form field names. Clients send either the Spanish or the English name.
var (
	fieldName    = []string{"nombre", "name"}
	fieldSurname = []string{"apellido", "surname"}
	fieldEmail   = []string{"email"}
	fieldImage   = []string{"imagen", "image"}
)

// parseForm reads a multipart or urlencoded body, capped at MaxUploadSize.
// It writes the error response itself and returns false on failure.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(constants.MaxUploadSize)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return false
	}
	return true
}

// formValue returns the first present field among names.
func formValue(r *http.Request, names []string) (string, bool) {
	for _, name := range names {
		if values, ok := r.PostForm[name]; ok && len(values) > 0 {
			return values[0], true
		}
		if r.MultipartForm != nil {
			if values, ok := r.MultipartForm.Value[name]; ok && len(values) > 0 {
				return values[0], true
			}
		}
	}
	return "", false
}

// optionalFormValue returns a pointer to the field value, nil when absent.
func optionalFormValue(r *http.Request, names []string) *string {
	v, ok := formValue(r, names)
	if !ok {
		return nil
	}
	return &v
}

// formImage reads the uploaded image among names, nil when no file was sent.
func formImage(r *http.Request, names []string) (*registry.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	for _, name := range names {
		files := r.MultipartForm.File[name]
		if len(files) == 0 {
			continue
		}
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open uploaded file: %w", err)
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("read uploaded file: %w", err)
		}
		return &registry.Image{
			Data:        data,
			ContentType: strings.TrimSpace(fh.Header.Get("Content-Type")),
		}, nil
	}
	return nil, nil
}
