package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"observation/backend/internal/model"
)

const responseTypeTag = "response_type"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// 错误中使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(responseTypeTag, func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case model.ResponseTypeText, model.ResponseTypePassFail, model.ResponseTypeEvidence:
			return true
		}
		return false
	})

	return v
}

// validateRequest 校验请求结构体，返回第一个字段错误
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fe := verrs[0]
	if fe.Tag() == responseTypeTag {
		return ErrInvalidResponseType
	}
	return &ValidationError{Field: fe.Field(), Reason: describeFieldError(fe)}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "不能为空"
	case "min":
		return "不能小于 " + fe.Param()
	case "max":
		return "不能大于 " + fe.Param()
	case "gtefield":
		return "不能早于 " + fe.Param()
	default:
		return "校验未通过 (" + fe.Tag() + ")"
	}
}
