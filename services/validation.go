package services

import (
	"chat-relay/errors"
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var validate = newValidator()

// newValidator reports fields by their `field` tag, which is the name exposed to clients.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("field"); name != "" {
			return name
		}
		return f.Name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

type createChatRequest struct {
	StarterUserID string   `field:"userId" validate:"required,notblank"`
	Partners      []string `field:"partners" validate:"dive,required"`
}

type latestChatsRequest struct {
	UserID string `field:"userId" validate:"required,notblank"`
	Limit  int    `field:"length" validate:"gt=0"`
}

type postMessageRequest struct {
	ChatID string `field:"chatId" validate:"required"`
	UserID string `field:"userId" validate:"required,notblank"`
}

// validateStruct turns the first failing field into a ValidationError.
// Every rule violation is reported as notvalid.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		field := fieldErrors[0].Field()
		// dive reports partners[i], the client only knows partners
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		return errors.NewValidationError(field, errors.KindNotValid)
	}
	return err
}

// ParseUserID accepts a non empty string, anything else (missing, object,
// array, number) is rejected.
func ParseUserID(v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", errors.NewValidationError("userId", errors.KindNotValid)
	}
	return s, nil
}

// ParseLimit accepts a positive integer given as a JSON number, a Go integer
// or a decimal string such as a query parameter.
func ParseLimit(v any) (int, error) {
	invalid := errors.NewValidationError("length", errors.KindNotValid)
	var n int64
	switch l := v.(type) {
	case int:
		n = int64(l)
	case int32:
		n = int64(l)
	case int64:
		n = l
	case float64:
		if l != math.Trunc(l) || l > math.MaxInt32 {
			return 0, invalid
		}
		n = int64(l)
	case json.Number:
		i, err := l.Int64()
		if err != nil {
			return 0, invalid
		}
		n = i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(l), 10, 64)
		if err != nil {
			return 0, invalid
		}
		n = i
	default:
		return 0, invalid
	}
	if n <= 0 || n > math.MaxInt32 {
		return 0, invalid
	}
	return int(n), nil
}

// ParsePartners accepts an array of strings, a missing value means no partner.
func ParsePartners(v any) ([]string, error) {
	invalid := errors.NewValidationError("partners", errors.KindNotValid)
	switch p := v.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return p, nil
	case []any:
		partners := make([]string, 0, len(p))
		for _, item := range p {
			s, ok := item.(string)
			if !ok {
				return nil, invalid
			}
			partners = append(partners, s)
		}
		return partners, nil
	default:
		return nil, invalid
	}
}
