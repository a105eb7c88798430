package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MJE43/rps-canvas/internal/webhook"
)

const (
	FeatureID         = "rps_canvas"
	FeatureTypeCanvas = "CANVAS"
	DeliveryWebhook   = "WEBHOOK"
)

// Manifest is the Benchling app manifest for the canvas app.
type Manifest struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	Features      []Feature     `yaml:"features"`
	Subscriptions Subscriptions `yaml:"subscriptions"`
}

// Feature is one app feature.
type Feature struct {
	Name      string   `yaml:"name"`
	ID        string   `yaml:"id"`
	Type      string   `yaml:"type"`
	Locations []string `yaml:"locations"`
}

// Subscriptions lists the webhook message types the app receives.
type Subscriptions struct {
	DeliveryMethod string         `yaml:"deliveryMethod"`
	WebhookURL     string         `yaml:"webhookUrl,omitempty"`
	Messages       []Subscription `yaml:"messages"`
}

// Subscription is a single message type.
type Subscription struct {
	Type string `yaml:"type"`
}

// Default returns the manifest for the Rock-Paper-Scissors canvas.
// webhookURL is optional.
func Default(webhookURL string) Manifest {
	return Manifest{
		Name:        "Rock Paper Scissors",
		Description: "Tiny demo app that renders an interactive App Canvas with three buttons.",
		Features: []Feature{{
			Name:      "RPS Canvas",
			ID:        FeatureID,
			Type:      FeatureTypeCanvas,
			Locations: []string{"ENTRY", "ENTRY_TEMPLATE", "APP_HOMEPAGE"},
		}},
		Subscriptions: Subscriptions{
			DeliveryMethod: DeliveryWebhook,
			WebhookURL:     strings.TrimSpace(webhookURL),
			Messages: []Subscription{
				{Type: webhook.TypeCanvasCreated},
				{Type: webhook.TypeCanvasUserInteracted},
			},
		},
	}
}

// Validate checks that the manifest only subscribes to handled message types.
func (m Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(m.Features) == 0 {
		errs = append(errs, errors.New("at least one feature is required"))
	}
	for i, f := range m.Features {
		if strings.TrimSpace(f.ID) == "" {
			errs = append(errs, fmt.Errorf("features[%d]: id is required", i))
		}
		if len(f.Locations) == 0 {
			errs = append(errs, fmt.Errorf("features[%d]: at least one location is required", i))
		}
	}
	if m.Subscriptions.DeliveryMethod != DeliveryWebhook {
		errs = append(errs, fmt.Errorf("subscriptions: unsupported delivery method %q", m.Subscriptions.DeliveryMethod))
	}
	for i, s := range m.Subscriptions.Messages {
		switch s.Type {
		case webhook.TypeCanvasCreated, webhook.TypeCanvasUserInteracted:
		default:
			errs = append(errs, fmt.Errorf("subscriptions.messages[%d]: unhandled type %q", i, s.Type))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("manifest: invalid: %w", err)
	}
	return nil
}

// Encode returns the manifest as YAML.
func (m Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("manifest: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Parse decodes and validates a YAML manifest.
func Parse(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
