package httperr

import (
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// ErrorResponse тело ответа об ошибке: {"message": ..., "error": ...}
type ErrorResponse struct {
	Status  int    `json:"-"`
	Message string `json:"message" example:"Sync failed"`
	Err     string `json:"error,omitempty" example:"insert event 3: constraint failed"`
}

func (e *ErrorResponse) Error() string {
	if e.Err == "" {
		return e.Message
	}
	return e.Message + ": " + e.Err
}

func (e *ErrorResponse) GetStatus() int {
	return e.Status
}

// New совместим с huma.NewError, чтобы ошибки валидации Huma имели ту же форму
func New(status int, msg string, errs ...error) huma.StatusError {
	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	return &ErrorResponse{
		Status:  status,
		Message: msg,
		Err:     strings.Join(details, "; "),
	}
}

var installOnce sync.Once

// Install подменяет huma.NewError на New для всего процесса.
// Вызывается один раз при старте сервера, до регистрации операций.
func Install() {
	installOnce.Do(func() {
		huma.NewError = New
	})
}
