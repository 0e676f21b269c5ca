package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wpfleet/wpfleet/internal/api"
)

// Fixed width so lexical order matches time order in SQLite TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func scanNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	switch typed := v.(type) {
	case *api.SiteMeta:
		if typed == nil {
			return sql.NullString{}, nil
		}
	case *api.ClientInfo:
		if typed == nil {
			return sql.NullString{}, nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodeMeta(value sql.NullString) (*api.SiteMeta, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var meta api.SiteMeta
	if err := json.Unmarshal([]byte(value.String), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &meta, nil
}

func decodeClient(value sql.NullString) (*api.ClientInfo, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	var client api.ClientInfo
	if err := json.Unmarshal([]byte(value.String), &client); err != nil {
		return nil, fmt.Errorf("decode client: %w", err)
	}
	return &client, nil
}
