package dto

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// pincodePattern matches an Indian postal PIN: six digits, non-zero leading.
var pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("pincode", validPincode)
	}
}

func validPincode(fl validator.FieldLevel) bool {
	return pincodePattern.MatchString(fl.Field().String())
}
