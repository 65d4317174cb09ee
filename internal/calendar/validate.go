package calendar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/caldash/internal/model"
)

// newDraftValidator はエラーメッセージにJSONフィールド名を使うバリデーターを生成する。
func newDraftValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateDraft はドラフトを検証し、不正な場合はINVALID_EVENTを返す。
func validateDraft(v *validator.Validate, draft *model.EventDraft) error {
	if draft == nil {
		return model.NewInvalidEventError("body is required")
	}

	err := v.Struct(draft)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate event draft: %w", err)
	}

	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, describeFieldError(fe))
	}
	return model.NewInvalidEventError(strings.Join(reasons, ", "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "datetime":
		return fmt.Sprintf("%s must be an RFC 3339 timestamp", field)
	case "timezone":
		return fmt.Sprintf("%s must be an IANA time zone", field)
	case "email":
		return fmt.Sprintf("%s must contain valid email addresses", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
