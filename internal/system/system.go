// Package system registers the built-in services every node runs: the
// collection definition store, languages, users and the events log.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
	"github.com/odyssey-cms/odyssey-cms/internal/storage"
)

// PasswordCost is the bcrypt cost used for stored passwords.
var PasswordCost = bcrypt.DefaultCost

var validate = validator.New()

// Register creates the built-in services on b.
func Register(b *broker.Broker, factory *entity.Factory, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	services := []*broker.Service{
		factory.New(Collections, CollectionsDefinition(),
			entity.WithoutArchive(),
			entity.WithCollectionKey(Collections),
			entity.WithUnique("name"),
			entity.WithBefore(validateDefinition(b), entity.ActionCreate, entity.ActionUpdate),
		),
		factory.New(Languages, LanguagesDefinition(),
			entity.WithCollectionKey(Languages),
			entity.WithUnique("code"),
			entity.WithBefore(canonicalLanguage, entity.ActionCreate, entity.ActionUpdate),
		),
		factory.New(Users, UsersDefinition(),
			entity.WithCollectionKey(Users),
			entity.WithUnique("email"),
			entity.WithHidden("password"),
			entity.WithBefore(checkEmail, entity.ActionCreate, entity.ActionUpdate),
			entity.WithBefore(hashPassword, entity.ActionCreate, entity.ActionUpdate),
			entity.WithBefore(rejectInsert, entity.ActionInsert),
		),
		factory.New(EventsLog, EventsLogDefinition(),
			entity.WithoutArchive(),
			entity.WithCollectionKey(EventsLog),
		),
	}
	for _, svc := range services {
		if err := b.CreateService(svc); err != nil {
			return fmt.Errorf("system: register %s: %w", svc.Name, err)
		}
		logger.Debug("system service registered", slog.String("service", svc.Name))
	}
	return nil
}

// validateDefinition checks the definition a write would leave behind. Updates
// are validated against the stored record merged with the patch.
func validateDefinition(b *broker.Broker) entity.BeforeHook {
	return func(ctx context.Context, req *broker.Request) error {
		candidate := map[string]any{}
		if req.Action == entity.ActionUpdate {
			id, _ := req.Params["id"].(string)
			current, err := b.Call(ctx, Collections+"."+entity.ActionGet, map[string]any{"id": id}, &broker.Meta{Raw: true})
			if err != nil {
				return err
			}
			if rec, ok := current.(map[string]any); ok {
				candidate = storage.Merge(rec, nil)
			}
		}
		for k, v := range req.Params {
			if k != "id" {
				candidate[k] = v
			}
		}
		def, err := entity.ParseDefinition(candidate)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		return def.Validate()
	}
}

// canonicalLanguage stores language codes as canonical BCP 47 tags.
func canonicalLanguage(ctx context.Context, req *broker.Request) error {
	raw, present := req.Params["code"]
	if !present {
		if req.Action == entity.ActionCreate {
			return fmt.Errorf("%w: code is required", shared.ErrValidation)
		}
		return nil
	}
	code, _ := raw.(string)
	tag, err := language.Parse(code)
	if err != nil || code == "" {
		return fmt.Errorf("%w: %q is not a valid language code", shared.ErrValidation, code)
	}
	req.Params["code"] = tag.String()
	return nil
}

func checkEmail(ctx context.Context, req *broker.Request) error {
	raw, present := req.Params["email"]
	if !present && req.Action == entity.ActionUpdate {
		return nil
	}
	email, _ := raw.(string)
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: %q is not a valid email", shared.ErrValidation, email)
	}
	return nil
}

func hashPassword(ctx context.Context, req *broker.Request) error {
	password, _ := req.Params["password"].(string)
	if password == "" {
		delete(req.Params, "password")
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return fmt.Errorf("system: hash password: %w", err)
	}
	req.Params["password"] = string(hashed)
	return nil
}

func rejectInsert(ctx context.Context, req *broker.Request) error {
	return fmt.Errorf("%w: bulk insert of users", shared.ErrMethodNotAllowed)
}

// CheckPassword compares a stored hash with a plaintext password.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return shared.ErrInvalidCredentials
	}
	return err
}
