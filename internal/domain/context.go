package domain

import (
	"encoding/json"
	"fmt"
)

// identityKeys are owned by the verified identity and are never taken from
// caller-supplied context.
var identityKeys = map[string]struct{}{
	"user_id":   {},
	"email":     {},
	"role":      {},
	"full_name": {},
}

// CallerContext is the optional user_context object supplied by the client.
// Role is the only field the caller may influence; every other key is kept in
// Extras and forwarded untouched.
type CallerContext struct {
	Role   string
	Extras map[string]any
}

// UnmarshalJSON accepts any JSON object. A role that is not a string is
// treated as absent rather than rejected.
func (c *CallerContext) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("domain: user_context must be an object: %w", err)
	}

	out := CallerContext{}
	for key, value := range raw {
		if key == "role" {
			var role string
			if err := json.Unmarshal(value, &role); err == nil {
				out.Role = role
			}
			continue
		}
		if _, reserved := identityKeys[key]; reserved {
			continue
		}
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("domain: user_context %q: %w", key, err)
		}
		if out.Extras == nil {
			out.Extras = make(map[string]any, len(raw))
		}
		out.Extras[key] = v
	}
	*c = out
	return nil
}

// EffectiveContext is the per-request context handed to orchestration.
type EffectiveContext struct {
	UserID   string
	Email    string
	Role     string
	FullName string
	Extras   map[string]any
}

// MarshalJSON flattens Extras and the identity fields into one object; the
// identity fields always win.
func (c EffectiveContext) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extras)+len(identityKeys))
	for k, v := range c.Extras {
		out[k] = v
	}
	out["user_id"] = c.UserID
	out["email"] = c.Email
	out["role"] = c.Role
	out["full_name"] = c.FullName
	return json.Marshal(out)
}

// MergeContext builds the effective context for a request. The caller may
// choose the role; user id, email and full name always come from identity.
func MergeContext(caller *CallerContext, identity UserIdentity) EffectiveContext {
	effective := EffectiveContext{
		UserID:   identity.UserID,
		Email:    identity.Email,
		Role:     identity.Role,
		FullName: identity.FullName,
	}
	if caller == nil {
		return effective
	}
	if caller.Role != "" {
		effective.Role = caller.Role
	}
	if len(caller.Extras) > 0 {
		effective.Extras = make(map[string]any, len(caller.Extras))
		for k, v := range caller.Extras {
			effective.Extras[k] = v
		}
	}
	return effective
}
