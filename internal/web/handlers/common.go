package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/kozaktomas/companion/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxJSONBody limits JSON request bodies; uploads go through multipart instead.
const maxJSONBody = 1 << 20

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	translator   ut.Translator
)

// requestValidator returns the shared validator. Messages use json field names.
func requestValidator() (*validator.Validate, ut.Translator) {
	validateOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		translator, _ = uni.GetTranslator("en")

		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = en_translations.RegisterDefaultTranslations(validate, translator)

		for tag, text := range map[string]string{
			"min": "{0} must be at least {1}",
			"max": "{0} must be at most {1}",
		} {
			_ = validate.RegisterTranslation(tag, translator,
				func(t ut.Translator) error { return t.Add(tag, text, true) },
				func(t ut.Translator, fe validator.FieldError) string {
					msg, _ := t.T(tag, fe.Field(), fe.Param())
					return msg
				},
			)
		}
	})
	return validate, translator
}

// validationMessage returns the translated message of the first failed field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		_, trans := requestValidator()
		return verrs[0].Translate(trans)
	}
	return err.Error()
}

// decodeJSON reads and validates a request body into dst. On failure it writes
// a 400 response and returns false. An empty body is accepted when allowEmpty
// is set and leaves dst at its zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !allowEmpty || !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return false
		}
	}

	v, _ := requestValidator()
	if err := v.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func getPersonWriter(r *http.Request, w http.ResponseWriter) database.PersonWriter {
	writer, err := database.GetPersonWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "people storage not available")
		return nil
	}
	return writer
}

func getTaskWriter(r *http.Request, w http.ResponseWriter) database.TaskWriter {
	writer, err := database.GetTaskWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "task storage not available")
		return nil
	}
	return writer
}

func getEncounterWriter(r *http.Request, w http.ResponseWriter) database.EncounterWriter {
	writer, err := database.GetEncounterWriter(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encounter storage not available")
		return nil
	}
	return writer
}
