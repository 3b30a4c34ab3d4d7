package parser

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zl-scraper/internal/model"
)

type doctorItem struct {
	ID      json.Number `json:"id"`
	Name    string      `json:"name"`
	Surname string      `json:"surname"`
	URL     string      `json:"url"`
}

// ParseDoctors decodes the doctors feed of a facility. The feed is a JSON
// array; any other JSON value yields no doctors. Items without a numeric id
// are kept in the count but carry ID 0.
func ParseDoctors(payload string) ([]model.Doctor, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, eris.Wrap(ErrMalformed, "empty doctors feed")
	}

	var raw any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "doctors feed: %v", err)
	}
	if _, ok := raw.([]any); !ok {
		return nil, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "doctors feed: %v", err)
	}

	doctors := make([]model.Doctor, 0, len(items))
	for _, it := range items {
		var d doctorItem
		// Non-object items still count as a listed doctor.
		_ = json.Unmarshal(it, &d)
		id, _ := d.ID.Int64()
		doctors = append(doctors, model.Doctor{
			ID:      id,
			Name:    strings.TrimSpace(d.Name),
			Surname: strings.TrimSpace(d.Surname),
			URL:     absURL(DefaultBaseURL, d.URL),
		})
	}
	return doctors, nil
}
