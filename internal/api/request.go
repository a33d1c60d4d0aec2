package api

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/command"
	"github.com/kalambet/wpbatch/internal/post"
	"github.com/kalambet/wpbatch/internal/schedule"
)

// BatchRequest is the body of POST /batch and the arguments of the
// start_batch tool. Topics holds one "title///keyword" line per post.
type BatchRequest struct {
	Topics          string `json:"topics"`
	Status          string `json:"status"`
	StartTime       string `json:"start_time"`
	IntervalMinutes *int   `json:"interval_minutes"`
}

func (r BatchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Topics, validation.Required, validation.By(hasTopic)),
		validation.Field(&r.Status, validation.In(
			string(post.StatusDraft), string(post.StatusPublish), string(post.StatusFuture))),
		validation.Field(&r.IntervalMinutes, validation.Min(0)),
	)
}

func hasTopic(value any) error {
	s, _ := value.(string)
	if len(post.ParseTopics(s)) == 0 {
		return errors.New(`must contain at least one "title///keyword" line`)
	}
	return nil
}

// Schedule converts r into a schedule, using defaultInterval when no
// interval was given.
func (r BatchRequest) Schedule(defaultInterval int) schedule.Config {
	interval := defaultInterval
	if r.IntervalMinutes != nil {
		interval = *r.IntervalMinutes
	}
	return schedule.Config{
		Status:          post.Status(strings.TrimSpace(r.Status)),
		StartTime:       strings.TrimSpace(r.StartTime),
		IntervalMinutes: interval,
	}
}

// CommandRequest is the body of POST /commands.
type CommandRequest struct {
	Command string `json:"command"`
}

func (r CommandRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Command, validation.Required, validation.By(knownCommand)),
	)
}

func knownCommand(value any) error {
	s, _ := value.(string)
	if !command.Valid(s) {
		return errors.New("must be one of pause, resume, status")
	}
	return nil
}

// startError maps controller start errors to an HTTP status and error type.
func startError(err error) (int, string) {
	var cfgErr *batch.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, "configuration_error"
	case errors.Is(err, batch.ErrBusy):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, batch.ErrNoItem):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, batch.ErrNotRetryable):
		return http.StatusConflict, "conflict_error"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}
