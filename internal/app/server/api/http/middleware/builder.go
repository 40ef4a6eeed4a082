package middleware

import (
	"github.com/danielgtaylor/huma/v2"
)

// Middleware сигнатура middleware для Huma
type Middleware = func(ctx huma.Context, next func(huma.Context))

// Container хранит общие мидлвари, которые получают все операции
type Container struct {
	common huma.Middlewares
}

// NewContainer создает контейнер с общими мидлварями
func NewContainer(common ...Middleware) *Container {
	c := &Container{}
	c.Add(common...)
	return c
}

// Add добавляет общие мидлвари в конец цепочки
func (mc *Container) Add(mws ...Middleware) {
	for _, mw := range mws {
		if mw != nil {
			mc.common = append(mc.common, mw)
		}
	}
}

// With возвращает новую цепочку: общие мидлвари, затем extra; контейнер не меняется
func (mc *Container) With(extra ...Middleware) huma.Middlewares {
	result := make(huma.Middlewares, 0, len(mc.common)+len(extra))
	result = append(result, mc.common...)
	for _, mw := range extra {
		if mw != nil {
			result = append(result, mw)
		}
	}
	return result
}
