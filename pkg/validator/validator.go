package validator

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/meditrack/meditrack-api/internal/model"
)

// RegisterDomainValidations installs the custom binding tags the request
// DTOs use on gin's validator engine. Call once at startup, before the
// router handles traffic.
func RegisterDomainValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("abnormal_flag", validAbnormalFlag); err != nil {
		return fmt.Errorf("failed to register abnormal_flag validation: %w", err)
	}
	return nil
}

// Priority deliberately has no tag here: unknown priorities fall back to
// ROUTINE with a warning instead of a rejection.
func validAbnormalFlag(fl validator.FieldLevel) bool {
	_, ok := model.ParseAbnormalFlag(fl.Field().String())
	return ok
}
