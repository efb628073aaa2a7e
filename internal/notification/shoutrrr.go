package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// ShoutrrrAlerter sends alerts to every configured shoutrrr service URL
// through a single router.
type ShoutrrrAlerter struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrAlerter validates urls and builds the sender.
func NewShoutrrrAlerter(urls []string, timeout time.Duration) (*ShoutrrrAlerter, error) {
	if len(urls) == 0 {
		return nil, errors.NewConfigurationError("at least one notification URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// service URLs carry tokens and passwords
		return nil, errors.New(redactError(err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return &ShoutrrrAlerter{urls: slices.Clone(urls), sender: sender}, nil
}

// Send delivers body with title to all services. The router applies its own
// timeout, so ctx is only checked before sending.
func (s *ShoutrrrAlerter) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}
	var failed []error
	for _, e := range s.sender.Send(body, &params) {
		if e != nil {
			failed = append(failed, redactError(e))
		}
	}
	if len(failed) > 0 {
		return errors.NewExternalServiceError("shoutrrr", errors.Join(failed...))
	}
	return nil
}

func redactError(err error) error {
	return fmt.Errorf("%s", logger.RedactSensitiveData(err.Error()))
}
