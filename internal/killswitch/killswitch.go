// Package killswitch forcibly tears down the live channel of an ended
// session. Implementations are invoked after the session is committed as
// ended and their failures are never fatal.
package killswitch

import (
	"context"
	"errors"
	"strings"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/rtc"
	"github.com/dukerupert/airlink/internal/websocket"
)

// ErrMissingPIN is returned when the session has no PIN to address.
var ErrMissingPIN = errors.New("missing_pin")

// KillSwitch disbands the channel identified by the session PIN.
type KillSwitch interface {
	Kill(ctx context.Context, s *model.Session, reason string) error
}

// Func adapts a function to KillSwitch.
type Func func(ctx context.Context, s *model.Session, reason string) error

func (f Func) Kill(ctx context.Context, s *model.Session, reason string) error {
	return f(ctx, s, reason)
}

func pinOf(s *model.Session) (string, error) {
	if s == nil {
		return "", ErrMissingPIN
	}
	pin := strings.TrimSpace(s.PIN)
	if pin == "" {
		return "", ErrMissingPIN
	}
	return pin, nil
}

// Chain runs every kill switch in order and joins their errors.
type Chain []KillSwitch

func (c Chain) Kill(ctx context.Context, s *model.Session, reason string) error {
	if _, err := pinOf(s); err != nil {
		return err
	}
	var errs []error
	for _, k := range c {
		if k == nil {
			continue
		}
		if err := k.Kill(ctx, s, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Room disbands the local WebSocket room for the session.
type Room struct {
	Hub *websocket.Hub
}

func (r Room) Kill(_ context.Context, s *model.Session, reason string) error {
	pin, err := pinOf(s)
	if err != nil {
		return err
	}
	r.Hub.Disband(pin, reason)
	return nil
}

// Channel disbands the provider channel named after the session PIN. An
// unconfigured client makes it a no-op.
type Channel struct {
	Client *rtc.Client
}

func (c Channel) Kill(ctx context.Context, s *model.Session, _ string) error {
	pin, err := pinOf(s)
	if err != nil {
		return err
	}
	if !c.Client.Configured() {
		return nil
	}
	return c.Client.DisbandChannel(ctx, pin)
}
