package sessionstore

import (
	"encoding/json"
	"fmt"
	"time"
)

const SchemaVersion = 1

// Document is the persisted form of a portal session.
type Document struct {
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	LoggedInAt    time.Time `json:"logged_in_at"`
	Cookies       []Cookie  `json:"cookies"`
}

// Cookie is one Set-Cookie as the portal issued it, with the URL of the
// response that carried it. Domain and Path are empty for host-only and
// default-path cookies.
type Cookie struct {
	URL      string     `json:"url"`
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain,omitempty"`
	Path     string     `json:"path,omitempty"`
	Secure   bool       `json:"secure,omitempty"`
	HttpOnly bool       `json:"http_only,omitempty"`
	Expires  *time.Time `json:"expires,omitempty"`
}

func EncodeDocument(doc Document) ([]byte, error) {
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = SchemaVersion
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return data, nil
}

func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode session: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (d Document) Validate() error {
	if d.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema_version: %d", d.SchemaVersion)
	}
	if len(d.Cookies) == 0 {
		return fmt.Errorf("session has no cookies")
	}
	for _, c := range d.Cookies {
		if c.URL == "" || c.Name == "" {
			return fmt.Errorf("session cookie missing url or name")
		}
	}
	return nil
}
