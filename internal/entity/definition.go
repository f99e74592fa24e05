package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// Action names shared by every entity service.
const (
	ActionFind      = "find"
	ActionList      = "list"
	ActionCount     = "count"
	ActionGet       = "get"
	ActionCreate    = "create"
	ActionInsert    = "insert"
	ActionUpdate    = "update"
	ActionRemove    = "remove"
	ActionGetSchema = "getSchema"
)

// Reserved record fields.
const (
	FieldArchived  = "_archived"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// AllAuthenticated is granted to every caller presenting a decoded token.
const AllAuthenticated = "$ALL_AUTHENTICATED"

const languageSeparator = "__"

var validate = validator.New()

// Definition is a stored collection definition.
type Definition struct {
	ID                 string         `json:"_id,omitempty"`
	Name               string         `json:"name" validate:"required,excludes=__"`
	DisplayName        string         `json:"displayName,omitempty"`
	Icon               string         `json:"icon,omitempty"`
	Schema             map[string]any `json:"schema" validate:"required"`
	RequiredPrivileges map[string]any `json:"requiredPrivileges,omitempty"`
	ItemPrivileges     []ItemRule     `json:"itemPrivileges,omitempty" validate:"dive"`
	PopulateSchema     map[string]any `json:"populateSchema,omitempty"`
	Singleton          bool           `json:"singleton,omitempty"`
}

// ItemRule restricts callers holding any of Privileges to records whose value
// at ItemPath matches their claim at TokenPath.
type ItemRule struct {
	Privileges        []string `json:"privileges" validate:"required,min=1"`
	TokenPath         string   `json:"tokenPath" validate:"required"`
	ItemPath          string   `json:"itemPath" validate:"required"`
	QueryByPopulation bool     `json:"queryByPopulation,omitempty"`
}

// ParseDefinition decodes a stored definition record.
func ParseDefinition(doc map[string]any) (Definition, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Definition{}, fmt.Errorf("entity: encode definition: %w", err)
	}
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return Definition{}, shared.Configurationf("malformed collection definition: %v", err)
	}
	return def, nil
}

// Validate checks the structural rules of a definition.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" "+fe.Tag())
			}
			return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	for action, v := range d.RequiredPrivileges {
		if _, ok := privilegeList(v); !ok && v != nil {
			return fmt.Errorf("%w: requiredPrivileges.%s must be a list of strings", shared.ErrValidation, action)
		}
	}
	return nil
}

// Properties returns the top level schema property names in sorted order.
func (d Definition) Properties() []string {
	props := d.properties()
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SlugFields lists properties marked as slugs, either with "slug": true,
// "format": "slug" or a SlugField form component.
func (d Definition) SlugFields() []string {
	var out []string
	for _, name := range d.Properties() {
		prop, _ := d.properties()[name].(map[string]any)
		if prop == nil {
			continue
		}
		if b, _ := prop["slug"].(bool); b {
			out = append(out, name)
			continue
		}
		if f, _ := prop["format"].(string); f == "slug" {
			out = append(out, name)
			continue
		}
		if c, ok := fieldpath.Lookup(prop, "uniforms.component"); ok && c == "SlugField" {
			out = append(out, name)
		}
	}
	return out
}

// Populates maps each populated field to its target action. Values may be a
// plain "service.action" string or an object with an "action" key.
func (d Definition) Populates() map[string]string {
	out := make(map[string]string, len(d.PopulateSchema))
	for field, v := range d.PopulateSchema {
		switch rule := v.(type) {
		case string:
			out[field] = rule
		case map[string]any:
			if action, ok := rule["action"].(string); ok {
				out[field] = action
			}
		}
	}
	return out
}

func (d Definition) properties() map[string]any {
	props, _ := d.Schema["properties"].(map[string]any)
	return props
}

// ServiceName returns the concrete service name for a collection and language.
func ServiceName(collection, language string) string {
	return collection + languageSeparator + language
}

// CollectionOf extracts the collection name from a concrete service name.
func CollectionOf(service string) (string, bool) {
	idx := strings.Index(service, languageSeparator)
	if idx <= 0 {
		return "", false
	}
	return service[:idx], true
}

func privilegeList(v any) ([]string, bool) {
	if _, isString := v.(string); isString {
		return nil, false
	}
	return fieldpath.Strings(v)
}
