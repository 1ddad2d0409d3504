package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/satyaLM/override-api/internal/types"
)

// ValidationError describes one failed rule. Field is the JSON path of the
// offending value relative to the validated struct, e.g. "cluster_ids[2].type".
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Tag     string `json:"-"`
	Value   any    `json:"-"`
}

// ValidationResult collects the failures of one validation pass.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid reports whether no rule failed.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator and registers the domain tags:
//
//	record_id  non-blank identifier that cannot contain the point key separator
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with field names reported by their JSON tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("record_id", validateRecordID); err != nil {
		// Only fails for an empty tag or nil func.
		panic(fmt.Sprintf("registering record_id validation: %v", err))
	}
	return &Validator{validate: v, logger: logger}
}

// Validate runs the struct rules and returns every failure.
func (v *Validator) Validate(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", "error", err, "type", fmt.Sprintf("%T", s))
		return ValidationResult{Errors: []ValidationError{{
			Code:    string(types.ErrCodeValidationInvalidBatch),
			Message: "request could not be validated",
		}}}
	}

	result := ValidationResult{Errors: make([]ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		field := fieldPath(fe.Namespace())
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Code:    tagToErrorCode(fe.Tag()),
			Message: describe(field, fe),
			Tag:     fe.Tag(),
			Value:   fe.Value(),
		})
	}
	return result
}

// ValidateStruct returns nil or a validation AppError whose code matches the
// first failure. The failures are attached under details["validation_errors"].
func (v *Validator) ValidateStruct(s any) error {
	result := v.Validate(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		"request validation failed",
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidationErrorsOf extracts the failures attached by ValidateStruct.
func ValidationErrorsOf(err error) []ValidationError {
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Details == nil {
		return nil
	}
	errs, _ := appErr.Details["validation_errors"].([]ValidationError)
	return errs
}

func validateRecordID(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	s := strings.TrimSpace(fl.Field().String())
	return s != "" && !strings.Contains(s, "::")
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "record_id":
		return field + " must be a non-empty identifier"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s item(s)", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s items", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "eq":
		return fmt.Sprintf("%s must be %q", field, fe.Param())
	case "ne":
		return fmt.Sprintf("%s must not be %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}

// tagToErrorCode maps validator tags to the stable error codes returned to
// clients.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required", "record_id", "ne":
		return string(types.ErrCodeValidationMissingField)
	case "min":
		return string(types.ErrCodeValidationBatchEmpty)
	case "max":
		return string(types.ErrCodeValidationBatchSize)
	case "eq", "oneof":
		return string(types.ErrCodeValidationInvalidType)
	case "unique":
		return string(types.ErrCodeValidationDuplicateItem)
	case "latitude":
		return string(types.ErrCodeValidationInvalidLat)
	case "longitude":
		return string(types.ErrCodeValidationInvalidLon)
	default:
		return string(types.ErrCodeValidationInvalidBatch)
	}
}
