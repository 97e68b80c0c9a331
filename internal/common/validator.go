package common

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

var (
	sharedOnce      sync.Once
	sharedValidator *validator.Validate
)

// Validator returns the process-wide validator instance. validator.Validate
// caches struct metadata and is safe for concurrent use.
func Validator() *validator.Validate {
	sharedOnce.Do(func() {
		sharedValidator = validator.New()
	})
	return sharedValidator
}

type GenericEchoValidator struct {
	Validator *validator.Validate
}

func NewGenericEchoValidator() *GenericEchoValidator {
	return &GenericEchoValidator{Validator: Validator()}
}

func (gv *GenericEchoValidator) Validate(i interface{}) error {
	v := gv.Validator
	if v == nil {
		v = Validator()
	}
	if err := v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request body: %v", err))
	}
	return nil
}

// FailedTags maps each failing struct field to the tag that rejected it.
// Errors that are not validation errors yield an empty map.
func FailedTags(err error) map[string]string {
	tags := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return tags
	}
	for _, fieldErr := range validationErrors {
		tags[fieldErr.StructField()] = fieldErr.Tag()
	}
	return tags
}
