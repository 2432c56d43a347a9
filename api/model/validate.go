package model

import (
	"sync"

	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验器注册 category 标签
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterValidation("category", validCategory)
		}
	})
}

func validCategory(fl validator.FieldLevel) bool {
	c, err := models.ParseCategory(fl.Field().String())
	return err == nil && c != ""
}
