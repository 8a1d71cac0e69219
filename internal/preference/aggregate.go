// Package preference merges like/dislike feedback into a user's bounded
// preference profile.
package preference

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/model"
)

var (
	// ErrProfileNotFound is returned when no profile record exists. An
	// existing profile with no preferences is not an error.
	ErrProfileNotFound = eris.New("preference: profile not found")
	// ErrMissingField is returned when an event carries neither like_level
	// nor polarity.
	ErrMissingField = eris.New("preference: missing field")
	// ErrInvalidField is returned for a malformed event value.
	ErrInvalidField = eris.New("preference: invalid field")
)

// newEntryAnchor is blended with a first-time like level.
const newEntryAnchor = 5.0

// Outcome is the result of applying a batch of feedback events.
type Outcome struct {
	Preferences []model.PreferenceEntry `json:"user_preferences"`
	Applied     int                     `json:"applied"`
	Skipped     int                     `json:"skipped"`
}

// ApplyFeedback merges events, in order, into a copy of the profile's
// preferences. Every event is validated before any is applied, so a bad
// batch leaves nothing half-merged. Events without an item id are skipped.
// The profile is not modified.
func ApplyFeedback(profile *model.Profile, events []model.FeedbackEvent) (Outcome, error) {
	if profile == nil {
		return Outcome{}, ErrProfileNotFound
	}
	if err := validate(events); err != nil {
		return Outcome{}, err
	}

	prefs := slices.Clone(profile.Preferences)
	if prefs == nil {
		prefs = []model.PreferenceEntry{}
	}

	out := Outcome{}
	for i, ev := range events {
		if !hasItem(ev) {
			zap.L().Warn("preference: skipping event without item_id",
				zap.Int64("user_id", profile.UserID),
				zap.Int("index", i),
			)
			out.Skipped++
			continue
		}
		prefs = apply(prefs, ev)
		out.Applied++
	}
	out.Preferences = prefs

	return out, nil
}

func apply(prefs []model.PreferenceEntry, ev model.FeedbackEvent) []model.PreferenceEntry {
	id := *ev.ItemID
	idx := slices.IndexFunc(prefs, func(p model.PreferenceEntry) bool { return p.ItemID == id })

	if idx >= 0 {
		old := prefs[idx].LikeLevel
		if ev.LikeLevel != nil {
			prefs[idx].LikeLevel = Clamp((old + *ev.LikeLevel) / 2)
		} else {
			prefs[idx].LikeLevel = Clamp(old + float64(*ev.Polarity))
		}
		return prefs
	}

	level := model.NeutralLikeLevel
	if ev.LikeLevel != nil {
		level = Clamp((*ev.LikeLevel + newEntryAnchor) / 2)
	}
	return append(prefs, model.PreferenceEntry{ItemID: id, LikeLevel: level})
}

func validate(events []model.FeedbackEvent) error {
	for i, ev := range events {
		if !hasItem(ev) {
			continue
		}
		switch {
		case ev.LikeLevel == nil && ev.Polarity == nil:
			return eris.Wrapf(ErrMissingField, "pref[%d].like_level or pref[%d].polarity is required", i, i)
		case ev.LikeLevel != nil && ev.Polarity != nil:
			return eris.Wrapf(ErrInvalidField, "pref[%d].polarity cannot be combined with like_level", i)
		case ev.LikeLevel != nil && (math.IsNaN(*ev.LikeLevel) || math.IsInf(*ev.LikeLevel, 0)):
			return eris.Wrapf(ErrInvalidField, "pref[%d].like_level must be a finite number", i)
		case ev.Polarity != nil && *ev.Polarity != 1 && *ev.Polarity != -1:
			return eris.Wrapf(ErrInvalidField, "pref[%d].polarity must be 1 or -1, got %d", i, *ev.Polarity)
		}
	}
	return nil
}

// hasItem reports whether the event names a restaurant. Zero is not a valid
// catalog id.
func hasItem(ev model.FeedbackEvent) bool {
	return ev.ItemID != nil && *ev.ItemID != 0
}

// Clamp bounds a like level to [MinLikeLevel, MaxLikeLevel].
func Clamp(v float64) float64 {
	return max(model.MinLikeLevel, min(model.MaxLikeLevel, v))
}
