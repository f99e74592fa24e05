package system

import "github.com/odyssey-cms/odyssey-cms/internal/entity"

// Names of the built-in services. They are not language scoped.
const (
	Collections = "collections"
	Languages   = "languages"
	Users       = "users"
	EventsLog   = "events-log"
)

// Privileges used by the built-in services.
const (
	PrivilegeAdmin      = "admin"
	PrivilegeSuperadmin = "superadmin"
	PrivilegeSystem     = "$SYSTEM"
)

func privileges(read, write []any) map[string]any {
	return map[string]any{
		entity.ActionCount:     read,
		entity.ActionFind:      read,
		entity.ActionList:      read,
		entity.ActionGet:       read,
		entity.ActionGetSchema: read,
		entity.ActionCreate:    write,
		entity.ActionInsert:    write,
		entity.ActionUpdate:    write,
		entity.ActionRemove:    write,
	}
}

func list(v ...string) []any {
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = list(required...)
	}
	return schema
}

func typed(t string) map[string]any {
	return map[string]any{"type": t}
}

// CollectionsDefinition describes the collection definition store.
func CollectionsDefinition() entity.Definition {
	return entity.Definition{
		Name:        Collections,
		DisplayName: "Collections",
		Icon:        "fas fa-database",
		Schema: object(map[string]any{
			"name":               typed("string"),
			"displayName":        typed("string"),
			"icon":               typed("string"),
			"tableFields":        typed("array"),
			"schema":             typed("object"),
			"requiredPrivileges": typed("object"),
			"itemPrivileges":     typed("array"),
			"populateSchema":     typed("object"),
			"singleton":          typed("boolean"),
		}, "name", "schema"),
		RequiredPrivileges: privileges(
			list(PrivilegeAdmin, PrivilegeSuperadmin),
			list(PrivilegeSuperadmin),
		),
	}
}

// LanguagesDefinition describes the language store.
func LanguagesDefinition() entity.Definition {
	return entity.Definition{
		Name:        Languages,
		DisplayName: "Languages",
		Icon:        "fas fa-language",
		Schema: object(map[string]any{
			"name": typed("string"),
			"code": typed("string"),
		}, "name", "code"),
		RequiredPrivileges: privileges(list(PrivilegeSuperadmin), list(PrivilegeSuperadmin)),
	}
}

// UsersDefinition describes user accounts.
func UsersDefinition() entity.Definition {
	return entity.Definition{
		Name:        Users,
		DisplayName: "Users",
		Icon:        "people",
		Schema: object(map[string]any{
			"email":      map[string]any{"type": "string", "format": "email"},
			"password":   typed("string"),
			"firstName":  typed("string"),
			"lastName":   typed("string"),
			"privileges": map[string]any{"type": "array", "items": typed("string")},
		}, "email"),
		RequiredPrivileges: privileges(list(PrivilegeSuperadmin), list(PrivilegeSuperadmin)),
	}
}

// EventsLogDefinition describes the persisted event log.
func EventsLogDefinition() entity.Definition {
	return entity.Definition{
		Name:        EventsLog,
		DisplayName: "Events log",
		Icon:        "fas fa-stream",
		Schema: object(map[string]any{
			"action":  typed("string"),
			"level":   typed("string"),
			"message": typed("string"),
			"data":    map[string]any{},
		}, "action", "level", "message"),
		RequiredPrivileges: privileges(
			list(PrivilegeAdmin, PrivilegeSuperadmin),
			list(PrivilegeSystem),
		),
	}
}
