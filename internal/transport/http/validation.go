package http

import (
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	validatorv10 "github.com/go-playground/validator/v10"
)

var registerValidationsOnce sync.Once

var msisdnPattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// validMSISDN принимает номер в свободном формате: необязательный "+",
// далее 7-15 цифр. Пробелы и дефисы игнорируются.
func validMSISDN(fl validatorv10.FieldLevel) bool {
	normalized := strings.NewReplacer(" ", "", "-", "").Replace(fl.Field().String())
	return msisdnPattern.MatchString(normalized)
}

// registerValidations регистрирует кастомные правила в движке gin binding.
func registerValidations() {
	if engine, ok := binding.Validator.Engine().(*validatorv10.Validate); ok {
		_ = engine.RegisterValidation("msisdn", validMSISDN)
	}
}
