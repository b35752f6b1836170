package platform

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/ledger"
	"github.com/dokzlo13/cyncd/internal/light"
)

type sourceKey struct{}

// WithSource tags ctx with the origin of a command (api, lua, ...).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}

// TurnOn turns an entity on with the given optional attributes.
func (p *Platform) TurnOn(ctx context.Context, uniqueID string, params light.TurnOnParams) error {
	e, err := p.Get(uniqueID)
	if err != nil {
		return err
	}
	err = e.TurnOn(ctx, params)
	p.record(ctx, uniqueID, "turn_on", turnOnPayload(params), err)
	return err
}

// TurnOff turns an entity off.
func (p *Platform) TurnOff(ctx context.Context, uniqueID string) error {
	e, err := p.Get(uniqueID)
	if err != nil {
		return err
	}
	err = e.TurnOff(ctx)
	p.record(ctx, uniqueID, "turn_off", nil, err)
	return err
}

func (p *Platform) record(ctx context.Context, uniqueID, command string, payload map[string]any, cmdErr error) {
	entry := ledger.Entry{
		EventType: ledger.EventCommandSent,
		UniqueID:  uniqueID,
		Command:   command,
		Source:    sourceFrom(ctx),
		Payload:   payload,
	}
	event := log.Debug()
	if cmdErr != nil {
		entry.EventType = ledger.EventCommandFailed
		entry.Error = cmdErr.Error()
		event = log.Error().Err(cmdErr)
	}
	event.Str("unique_id", uniqueID).Str("command", command).Str("source", entry.Source).Msg("Command dispatched")

	if p.metrics != nil {
		p.metrics.RecordCommand(command, cmdErr)
	}
	// Record even when the caller's ctx is already done.
	if err := p.ledger.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("unique_id", uniqueID).Msg("Failed to append command to ledger")
	}
}

func turnOnPayload(params light.TurnOnParams) map[string]any {
	payload := make(map[string]any)
	if params.RGB != nil {
		payload["rgb"] = params.RGB.Triple()
	}
	if params.Brightness != nil {
		payload["brightness"] = *params.Brightness
	}
	if params.ColorTempKelvin != nil {
		payload["color_temp_kelvin"] = *params.ColorTempKelvin
	}
	if len(payload) == 0 {
		return nil
	}
	return payload
}
