package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-yaml/yaml"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/system"
)

// SeedFile lists the records created by the seed command. Languages are
// applied first so collections register in every language.
type SeedFile struct {
	Languages   []map[string]any `yaml:"languages"`
	Collections []map[string]any `yaml:"collections"`
	Users       []map[string]any `yaml:"users"`
}

// ParseSeed decodes a YAML seed file.
func ParseSeed(r io.Reader) (SeedFile, error) {
	var raw struct {
		Languages   []any `yaml:"languages"`
		Collections []any `yaml:"collections"`
		Users       []any `yaml:"users"`
	}
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return SeedFile{}, fmt.Errorf("seed: decode: %w", err)
	}
	var seed SeedFile
	var err error
	if seed.Languages, err = records("languages", raw.Languages); err != nil {
		return SeedFile{}, err
	}
	if seed.Collections, err = records("collections", raw.Collections); err != nil {
		return SeedFile{}, err
	}
	if seed.Users, err = records("users", raw.Users); err != nil {
		return SeedFile{}, err
	}
	return seed, nil
}

func records(section string, items []any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		doc, ok := normalise(item).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("seed: %s[%d] is not a mapping", section, i)
		}
		out = append(out, doc)
	}
	return out, nil
}

// normalise converts YAML mappings into JSON shaped maps.
func normalise(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalise(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalise(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalise(val)
		}
		return out
	default:
		return v
	}
}

// SeedReport counts what a seed run did per service.
type SeedReport struct {
	Created map[string]int
	Skipped map[string]int
}

// Seeder writes seed records through the system services.
type Seeder struct {
	broker *broker.Broker
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(b *broker.Broker, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{broker: b, logger: logger}
}

// Apply creates every record of seed. Records that already exist are skipped.
func (s *Seeder) Apply(ctx context.Context, seed SeedFile) (SeedReport, error) {
	report := SeedReport{Created: map[string]int{}, Skipped: map[string]int{}}
	sections := []struct {
		service string
		docs    []map[string]any
	}{
		{system.Languages, seed.Languages},
		{system.Collections, seed.Collections},
		{system.Users, seed.Users},
	}
	for _, section := range sections {
		for _, doc := range section.docs {
			_, err := s.broker.Call(ctx, section.service+"."+entity.ActionCreate, doc, nil)
			switch {
			case err == nil:
				report.Created[section.service]++
			case errors.Is(err, shared.ErrDuplicate):
				report.Skipped[section.service]++
				s.logger.Info("seed record exists", slog.String("service", section.service), slog.Any("error", err))
			default:
				return report, fmt.Errorf("seed %s: %w", section.service, err)
			}
		}
	}
	return report, nil
}
