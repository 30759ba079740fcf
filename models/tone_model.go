package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AmpSettings are the seven knobs the oracle recommends. Each value is in
// [0,10] with 0.5 granularity.
type AmpSettings struct {
	Gain     float64 `json:"gain"`
	Treble   float64 `json:"treble"`
	Mid      float64 `json:"mid"`
	Bass     float64 `json:"bass"`
	Presence float64 `json:"presence"`
	Reverb   float64 `json:"reverb"`
	Volume   float64 `json:"volume"`
}

// Value stores AmpSettings as JSONB.
func (s AmpSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan reads AmpSettings back from a JSONB column.
func (s *AmpSettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type %T for AmpSettings", src)
	}
}

type Tone struct {
	UUID        uuid.UUID   `db:"uuid" json:"uuid"`
	UserUUID    uuid.UUID   `db:"user_uuid" json:"-"`
	Name        string      `db:"name" json:"name"`
	Artist      string      `db:"artist" json:"artist"`
	Description string      `db:"description" json:"description"`
	Guitar      string      `db:"guitar" json:"guitar"`
	Pickups     string      `db:"pickups" json:"pickups"`
	Strings     string      `db:"strings" json:"strings"`
	Amp         string      `db:"amp" json:"amp"`
	Settings    AmpSettings `db:"settings" json:"settings"`
	Notes       string      `db:"notes" json:"notes"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

type CreateToneRequest struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	Description string `json:"description"`
	Guitar      string `json:"guitar"`
	Pickups     string `json:"pickups"`
	Strings     string `json:"strings"`
	Amp         string `json:"amp"`
}

// UpdateToneRequest uses pointers so an absent field can be told apart
// from an explicit empty string.
type UpdateToneRequest struct {
	Name        *string `json:"name"`
	Artist      *string `json:"artist"`
	Description *string `json:"description"`
	Guitar      *string `json:"guitar"`
	Pickups     *string `json:"pickups"`
	Strings     *string `json:"strings"`
	Amp         *string `json:"amp"`
}
