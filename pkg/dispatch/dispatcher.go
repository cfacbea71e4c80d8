// Package dispatch routes classified errors to the user-facing action for
// their kind and records a diagnostic log entry for each.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/harrisonrobin/onesheet/pkg/apperr"
	"go.uber.org/zap"
)

// Level is the severity of a user notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows a transient message to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// Navigator knows where the user currently is and how to send them to login.
type Navigator interface {
	// CurrentLocation returns the path and query of the current view.
	CurrentLocation() string
	NavigateToLogin()
}

// Options select the side effects of Handle. The zero value does nothing
// beyond classification; use DefaultOptions for the usual behavior.
type Options struct {
	ShowNotification bool
	Log              bool
	RedirectToLogin  bool
	PreserveState    bool
}

// DefaultOptions enables every side effect.
func DefaultOptions() Options {
	return Options{ShowNotification: true, Log: true, RedirectToLogin: true, PreserveState: true}
}

// Dispatcher is the error dispatch table.
type Dispatcher struct {
	notifier  Notifier
	navigator Navigator
	locations LocationStore
	logger    *zap.Logger
}

// New creates a Dispatcher. Any collaborator may be nil, which disables
// the corresponding side effect.
func New(notifier Notifier, navigator Navigator, locations LocationStore, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{notifier: notifier, navigator: navigator, locations: locations, logger: logger}
}

// Handle dispatches err with DefaultOptions.
func (d *Dispatcher) Handle(err error) *apperr.Error {
	return d.HandleWith(err, DefaultOptions())
}

// HandleWith classifies err, performs the side effects opts asks for and
// returns the classified error. A nil err is ignored.
func (d *Dispatcher) HandleWith(err error, opts Options) *apperr.Error {
	e := apperr.Ensure(err)
	if e == nil {
		return nil
	}
	if opts.Log {
		d.log(e)
	}

	switch e.Kind {
	case apperr.KindNetwork:
		d.notify(opts, LevelError, e.Message())
	case apperr.KindAuth:
		switch e.Status {
		case http.StatusUnauthorized:
			d.notify(opts, LevelWarning, apperr.MsgSessionExpired)
			if opts.RedirectToLogin {
				d.RedirectToLogin(opts.PreserveState)
			}
		case http.StatusForbidden:
			d.notify(opts, LevelError, apperr.MsgForbidden)
		default:
			d.notify(opts, LevelError, e.Message())
		}
	case apperr.KindBusiness:
		d.notify(opts, LevelError, e.Message())
	default:
		// System detail stays in the log. A cancelled run is not a server
		// failure and says so.
		if errors.Is(e, context.Canceled) {
			d.notify(opts, LevelError, e.Message())
			break
		}
		d.notify(opts, LevelError, apperr.MsgServer)
	}
	return e
}

// RedirectToLogin sends the user to login. With preserveState the current
// location is saved so a later successful login can return there.
func (d *Dispatcher) RedirectToLogin(preserveState bool) {
	if preserveState && d.locations != nil && d.navigator != nil {
		if loc := d.navigator.CurrentLocation(); loc != "" {
			if err := d.locations.Save(loc); err != nil {
				d.logger.Warn("could not save location for after login", zap.String("location", loc), zap.Error(err))
			}
		}
	}
	if d.navigator != nil {
		d.navigator.NavigateToLogin()
	}
}

// ResumeLocation returns and forgets the location saved by the last
// redirect, if it is still fresh.
func (d *Dispatcher) ResumeLocation() (string, bool) {
	if d.locations == nil {
		return "", false
	}
	loc, ok, err := d.locations.Take()
	if err != nil {
		d.logger.Warn("could not read saved location", zap.Error(err))
		return "", false
	}
	return loc, ok
}

func (d *Dispatcher) notify(opts Options, level Level, msg string) {
	if opts.ShowNotification && d.notifier != nil {
		d.notifier.Notify(level, msg)
	}
}

func (d *Dispatcher) log(e *apperr.Error) {
	fields := []zap.Field{
		zap.String("kind", e.Kind.String()),
		zap.String("message", e.Message()),
		zap.String("code", string(e.Code())),
	}
	if e.Status != 0 {
		fields = append(fields, zap.Int("status", e.Status))
	}
	switch e.Kind {
	case apperr.KindSystem:
		if cause := e.Unwrap(); cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		if len(e.Details) > 0 {
			fields = append(fields, zap.Any("details", e.Details))
		}
		d.logger.Error("system error", fields...)
	case apperr.KindBusiness:
		d.logger.Warn("business error", fields...)
	default:
		if cause := e.Unwrap(); cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		d.logger.Error(e.Kind.String()+" error", fields...)
	}
}

// WriterNotifier prints notifications as single lines to W.
type WriterNotifier struct {
	W io.Writer
}

// Notify implements Notifier.
func (n WriterNotifier) Notify(level Level, message string) {
	fmt.Fprintf(n.W, "%s: %s\n", level, message)
}
