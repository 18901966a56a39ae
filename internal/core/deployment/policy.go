package deployment

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Policy Table Functions
// =============================================================================

// DefaultPolicies returns the policy table for the standard contract suite.
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		NameController:               {Role: RoleRegistry, Manifest: true},
		NameAugurLite:                {Role: RoleRootLog, Manifest: true},
		NameDelegator:                {Role: RoleProxy},
		NameTime:                     {Role: RoleClock, Initialize: true},
		NameTimeControlled:           {Role: RoleTestClock},
		NameTestNetDenominationToken: {Delegated: true, TestOnly: true},
		NameMap:                      {SharedLibrary: true},
		NameCompleteSets:             {Initialize: true, Whitelist: true, Manifest: true},
		NameClaimTradingProceeds:     {Initialize: true, Whitelist: true, Manifest: true},
		NameShareToken:               {Manifest: true},
	}
}

// ParsePolicies parses a YAML policy table and validates it.
//
// Example:
//
//	Controller: {role: registry, manifest: true}
//	AugurLite: {role: root_log, manifest: true}
//	Delegator: {role: proxy}
//	TestNetDenominationToken: {delegated: true, test_only: true}
func ParsePolicies(data []byte) (PolicyTable, error) {
	var table PolicyTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, NewPlanError("policies", err.Error(), ErrInvalidPolicy)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// MarshalYAML renders the table with names in sorted order.
func (t PolicyTable) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range t.Names() {
		var value yaml.Node
		if err := value.Encode(t[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			&value,
		)
	}
	return node, nil
}

// Names returns the table's artifact names sorted.
func (t PolicyTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that each special role is held by exactly one name (the
// clock roles by at most one) and that roles are known.
func (t PolicyTable) Validate() error {
	holders := make(map[Role][]string)
	for _, name := range t.Names() {
		p := t[name]
		switch p.Role {
		case RoleStandard, RoleRegistry, RoleRootLog, RoleProxy, RoleClock, RoleTestClock:
		default:
			return NewPlanError(name, fmt.Sprintf("unknown role %q", p.Role), ErrInvalidPolicy)
		}
		if p.Role != RoleStandard {
			holders[p.Role] = append(holders[p.Role], name)
		}
		if p.Delegated && p.Role != RoleStandard {
			return NewPlanError(name, "only standard artifacts can be delegated", ErrInvalidPolicy)
		}
		if (p.Role == RoleProxy || p.Role == RoleTestClock) && (p.Initialize || p.Whitelist || p.Manifest) {
			return NewPlanError(name, "never uploaded under its own name, so it cannot be initialized, whitelisted or listed", ErrInvalidPolicy)
		}
	}

	for _, role := range []Role{RoleRegistry, RoleRootLog, RoleProxy} {
		switch len(holders[role]) {
		case 0:
			return NewPlanError(string(role), "no artifact holds this role", ErrMissingRole)
		case 1:
		default:
			return NewPlanError(string(role), fmt.Sprintf("held by %v", holders[role]), ErrInvalidPolicy)
		}
	}
	for _, role := range []Role{RoleClock, RoleTestClock} {
		if len(holders[role]) > 1 {
			return NewPlanError(string(role), fmt.Sprintf("held by %v", holders[role]), ErrInvalidPolicy)
		}
	}
	return nil
}

// NameFor returns the artifact name holding role, or "" if none does.
func (t PolicyTable) NameFor(role Role) string {
	for _, name := range t.Names() {
		if t[name].Role == role {
			return name
		}
	}
	return ""
}

// Lookup returns the policy for name; unknown names get the zero Policy.
func (t PolicyTable) Lookup(name string) Policy {
	return t[name]
}
