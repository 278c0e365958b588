package validate

import (
	"errors"
	"sync/atomic"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/qs3c/iris_server/internal/credit"
)

var ErrUnsupportedEngine = errors.New("binding validator is not go-playground/validator")

var catalog atomic.Pointer[credit.Catalog]

// Register 在 gin 的校验引擎上注册自定义规则。
// plan_id: 字段必须是目录中存在的套餐 ID。
func Register(c *credit.Catalog) error {
	catalog.Store(c)

	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return ErrUnsupportedEngine
	}
	return v.RegisterValidation("plan_id", planID)
}

func planID(fl validator.FieldLevel) bool {
	c := catalog.Load()
	if c == nil {
		return false
	}
	_, ok := c.Lookup(fl.Field().String())
	return ok
}
