package optimistic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

var (
	ErrCoolingDown = errors.New("action is cooling down")
	ErrInvalid     = errors.New("invalid mutation")
)

type Kind int

const (
	KindFailed Kind = iota
	KindForbidden
	KindNotFound
	KindRateLimited
	KindTransient
	KindValidation
	KindCoolingDown
)

func (k Kind) String() string {
	switch k {
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindCoolingDown:
		return "cooling-down"
	}
	return "failed"
}

const (
	MsgForbidden  = "No tienes permisos para realizar esta acción"
	MsgNotFound   = "El elemento ya no existe, se recargó la lista"
	MsgTransient  = "No se pudo conectar con el servidor. Revisa tu conexión"
	MsgValidation = "Los datos enviados no son válidos"
	MsgFailed     = "No se pudo completar la acción"
)

// Failure is returned by Engine.Run when a mutation did not stick.
type Failure struct {
	Kind     Kind
	Status   int
	Mutation string
	Message  string
	// RetryAfter is set for rate-limited and cooling-down failures.
	RetryAfter time.Duration
	Err        error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Mutation, f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Mutation, f.Kind)
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind of err, KindFailed when err is not a Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindFailed
}

type statusCarrier interface {
	HTTPStatus() int
}

type retryCarrier interface {
	RetryDelay() time.Duration
}

func classify(name string, err error) *Failure {
	f := &Failure{Mutation: name, Err: err, Kind: KindFailed, Message: MsgFailed}

	var sc statusCarrier
	if errors.As(err, &sc) {
		f.Status = sc.HTTPStatus()
		switch {
		case f.Status == 0:
			f.Kind, f.Message = KindTransient, MsgTransient
		case f.Status == http.StatusForbidden:
			f.Kind, f.Message = KindForbidden, MsgForbidden
		case f.Status == http.StatusNotFound:
			f.Kind, f.Message = KindNotFound, MsgNotFound
		case f.Status == http.StatusTooManyRequests:
			f.Kind = KindRateLimited
			var rc retryCarrier
			if errors.As(err, &rc) {
				f.RetryAfter = rc.RetryDelay()
			}
			if f.RetryAfter <= 0 {
				f.RetryAfter = defaultCooldown
			}
			f.Message = cooldownMessage(f.RetryAfter)
		case f.Status == http.StatusBadRequest || f.Status == http.StatusUnprocessableEntity:
			f.Kind, f.Message = KindValidation, MsgValidation
		case f.Status == http.StatusGatewayTimeout || f.Status == http.StatusRequestTimeout:
			f.Kind, f.Message = KindTransient, MsgTransient
		}
		return f
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		f.Kind, f.Message = KindTransient, MsgTransient
	}
	return f
}

func cooldownMessage(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("Demasiadas solicitudes. Intenta de nuevo en %d segundos", secs)
}
