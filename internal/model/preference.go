package model

import "encoding/json"

// Like level bounds.
const (
	MinLikeLevel     = 1.0
	MaxLikeLevel     = 10.0
	NeutralLikeLevel = 6.0
)

// PreferenceEntry is a user's affinity for one restaurant.
type PreferenceEntry struct {
	ItemID    int64   `json:"item_id"`
	LikeLevel float64 `json:"like_level"`
}

// Profile is a user's persisted preference record. A profile with no
// preferences is valid; a missing profile is represented by a nil *Profile.
type Profile struct {
	UserID      int64             `json:"user_id"`
	Preferences []PreferenceEntry `json:"user_preferences"`
}

// FeedbackEvent is one like/dislike signal. Exactly one of LikeLevel and
// Polarity is expected.
type FeedbackEvent struct {
	ItemID    *int64   `json:"item_id,omitempty"`
	LikeLevel *float64 `json:"like_level,omitempty"`
	Polarity  *int     `json:"polarity,omitempty"`
}

// UnmarshalJSON accepts the legacy "like_or_not" key as an alias for polarity.
func (e *FeedbackEvent) UnmarshalJSON(b []byte) error {
	var raw struct {
		ItemID    *int64   `json:"item_id"`
		LikeLevel *float64 `json:"like_level"`
		Polarity  *int     `json:"polarity"`
		LikeOrNot *int     `json:"like_or_not"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.ItemID = raw.ItemID
	e.LikeLevel = raw.LikeLevel
	e.Polarity = raw.Polarity
	if e.Polarity == nil {
		e.Polarity = raw.LikeOrNot
	}
	return nil
}
