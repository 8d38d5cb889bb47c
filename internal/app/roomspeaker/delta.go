package roomspeaker

import (
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/cuebox/internal/app/playback"
	"github.com/osa030/cuebox/internal/domain/track"
)

// Delta is the speaker's push update. Every field is independent;
// absence means "unchanged". The transport payload is validated into
// this closed shape at the boundary instead of being merged blindly.
type Delta struct {
	// Queue is a combined queue/cursor update.
	Queue *QueueDelta `mapstructure:"queue"`
	// QueuePosition reports that the speaker advanced to a new track on
	// its own (track boundary).
	QueuePosition *int         `mapstructure:"queue_position"`
	CurrentTrack  *track.Track `mapstructure:"current_track"`
	// Tracks is a whole-queue replacement, optionally with a cursor.
	Tracks []track.Track `mapstructure:"tracks"`
	Index  *int          `mapstructure:"index"`
	TimeMs *int64        `mapstructure:"time"`
	State  *string       `mapstructure:"state"`
	Volume *int          `mapstructure:"volume"`
}

// QueueDelta is a full queue replacement with playback position.
type QueueDelta struct {
	Tracks []track.Track `mapstructure:"tracks"`
	Index  *int          `mapstructure:"index"`
	TimeMs *int64        `mapstructure:"time"`
}

// DecodeDelta validates a raw push payload into a Delta. A payload that
// does not fit the shape is a malformed delta; the caller drops it and
// keeps prior state.
func DecodeDelta(payload any) (*Delta, error) {
	body, ok := payload.(map[string]any)
	if !ok {
		return nil, errors.Mark(errors.New("payload is not an object"), playback.ErrMalformedDelta)
	}
	var d Delta
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &d,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, errors.Mark(err, playback.ErrMalformedDelta)
	}
	if err := dec.Decode(body); err != nil {
		return nil, errors.Mark(err, playback.ErrMalformedDelta)
	}
	return &d, nil
}
