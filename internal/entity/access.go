package entity

import (
	"context"
	"log/slog"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/fieldpath"
	"github.com/odyssey-cms/odyssey-cms/internal/query"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// checkRole enforces requiredPrivileges for calls entering through the API.
func (s *service) checkRole(ctx context.Context, req *broker.Request) (outcome, error) {
	if !req.Meta.CalledByAPI {
		return pass, nil
	}
	declared, found := s.def.RequiredPrivileges[req.Action]
	if !found || declared == nil {
		return pass, nil
	}
	required, isList := privilegeList(declared)
	if !isList {
		s.logger.Error("required privileges are not a list", slog.String("action", req.Action))
		return pass, shared.Configurationf("privileges to check for %s should be an array, found %T", req.Action, declared)
	}
	if len(required) == 0 {
		return pass, nil
	}
	held, err := effectivePrivileges(req.Meta)
	if err != nil {
		return pass, err
	}
	if intersects(required, held) {
		return pass, nil
	}
	s.logger.Warn("privileges check failed",
		slog.String("action", req.Action),
		slog.Any("required", required))
	return pass, &shared.PrivilegesError{Privileges: required}
}

// checkItems applies item privilege rules. List shaped actions are narrowed to
// the caller's records; single record actions are verified against the stored
// record and rejected on mismatch.
func (s *service) checkItems(ctx context.Context, req *broker.Request) (outcome, error) {
	if !req.Meta.CalledByAPI {
		return pass, nil
	}
	claimed, err := claimedPrivileges(req.Meta)
	if err != nil {
		return pass, err
	}
	token := req.Meta.DecodedToken
	for _, rule := range s.def.ItemPrivileges {
		if !ruleApplies(rule, token != nil, claimed) {
			continue
		}
		tokenValue, hasClaim := fieldpath.Lookup(token, rule.TokenPath)
		switch req.Action {
		case ActionFind, ActionList, ActionCount:
			if err := s.narrowQuery(req, rule, tokenValue, hasClaim); err != nil {
				return pass, err
			}
		case ActionGet, ActionUpdate, ActionRemove:
			if err := s.verifyItem(ctx, req, rule, tokenValue, hasClaim); err != nil {
				return pass, err
			}
		}
	}
	return pass, nil
}

func (s *service) narrowQuery(req *broker.Request, rule ItemRule, tokenValue any, hasClaim bool) error {
	q, err := queryParam(req.Params)
	if err != nil {
		return err
	}
	var cond any = tokenValue
	switch {
	case !hasClaim:
		cond = map[string]any{query.OpIn: []any{}}
	default:
		if list, isList := fieldpath.AsList(tokenValue); isList {
			cond = map[string]any{query.OpIn: list}
		}
	}
	if _, taken := q[rule.ItemPath]; taken {
		and, _ := fieldpath.AsList(q[query.OpAnd])
		q[query.OpAnd] = append(and, map[string]any{rule.ItemPath: cond})
	} else {
		q[rule.ItemPath] = cond
	}
	if rule.QueryByPopulation {
		req.Params[paramQueryByPopulation] = true
		addPopulate(req.Params, fieldpath.Root(rule.ItemPath))
	}
	return nil
}

func (s *service) verifyItem(ctx context.Context, req *broker.Request, rule ItemRule, tokenValue any, hasClaim bool) error {
	ids, _, err := idsParam(req.Params)
	if err != nil {
		return err
	}
	for _, id := range ids {
		doc, err := s.fetch(ctx, id)
		if err != nil {
			return err
		}
		if rule.QueryByPopulation {
			docs, err := s.populate(ctx, req, []map[string]any{doc}, []string{fieldpath.Root(rule.ItemPath)})
			if err != nil {
				return err
			}
			doc = docs[0]
		}
		itemValue, found := fieldpath.Lookup(doc, rule.ItemPath)
		if !hasClaim || !found || !fieldpath.Matches(itemValue, tokenValue) {
			s.logger.Warn("item privileges check failed",
				slog.String("action", req.Action),
				slog.String("id", id),
				slog.String("itemPath", rule.ItemPath))
			return &shared.PrivilegesError{Privileges: rule.Privileges}
		}
	}
	return nil
}

// effectivePrivileges is the caller's privilege set: $ALL_AUTHENTICATED for
// token holders, system injected privileges and the token's own claims.
func effectivePrivileges(meta *broker.Meta) ([]string, error) {
	var held []string
	if meta.DecodedToken != nil {
		held = append(held, AllAuthenticated)
	}
	claimed, err := claimedPrivileges(meta)
	if err != nil {
		return nil, err
	}
	return append(held, claimed...), nil
}

func claimedPrivileges(meta *broker.Meta) ([]string, error) {
	held := append([]string(nil), meta.Privileges...)
	raw, found := meta.DecodedToken["privileges"]
	if !found || raw == nil {
		return held, nil
	}
	fromToken, isList := privilegeList(raw)
	if !isList {
		return nil, shared.Configurationf("privileges in token should be an array, found %T", raw)
	}
	return append(held, fromToken...), nil
}

func ruleApplies(rule ItemRule, authenticated bool, claimed []string) bool {
	for _, p := range rule.Privileges {
		if p == AllAuthenticated && authenticated {
			return true
		}
	}
	return intersects(rule.Privileges, claimed)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
