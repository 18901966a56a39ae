package deployment

import (
	"regexp"
	"strings"

	"github.com/artpar/deployer/internal/core/artifact"
)

// =============================================================================
// Work Planning
// =============================================================================

var interfaceName = regexp.MustCompile(`^I[A-Z]`)

// IsInterfaceName reports whether name follows the interface-only naming
// convention ("IUniverse", "IController").
func IsInterfaceName(name string) bool {
	return interfaceName.MatchString(name)
}

// TargetName returns the registration name of a delegated artifact's
// implementation.
func TargetName(name string) string {
	return name + TargetSuffix
}

// PlanWork consults the policy table once and produces the full work list,
// the exclusions with their reasons, and the name lists for the later
// passes.
//
// Dependencies are declared per item: the registry depends on nothing, the
// root/log artifact on the registry, and every other item on both.
//
// Exclusion rules, in order:
//  1. the registry and root/log artifacts are planned as their own items
//  2. the proxy helper is only uploaded in front of delegated artifacts
//  3. the controllable clock is never uploaded under its own name
//  4. test-only artifacts are excluded in production
//  5. library-namespace artifacts are excluded unless marked SharedLibrary
//
// Example:
//
//	plan, err := PlanWork(set, DefaultPolicies(), Options{LibraryPrefix: "libraries/"})
//	// plan.Items[0].Kind == KindRegistry, plan.Items[1].Kind == KindRootLog
func PlanWork(set *artifact.Set, policies PolicyTable, opts Options) (Plan, error) {
	if err := policies.Validate(); err != nil {
		return Plan{}, err
	}
	if opts.LibraryPrefix == "" {
		opts.LibraryPrefix = DefaultLibraryPrefix
	}

	plan := Plan{
		Registry:  policies.NameFor(RoleRegistry),
		RootLog:   policies.NameFor(RoleRootLog),
		Proxy:     policies.NameFor(RoleProxy),
		ClockName: policies.NameFor(RoleClock),
	}
	testClock := policies.NameFor(RoleTestClock)

	for _, name := range []string{plan.Registry, plan.RootLog} {
		if !set.Has(name) {
			return Plan{}, NewPlanError(name, "required artifact is missing from the compiled set", artifact.ErrNotFound)
		}
	}

	plan.Items = append(plan.Items,
		WorkItem{Name: plan.Registry, Artifact: plan.Registry, Kind: KindRegistry, Policy: policies.Lookup(plan.Registry)},
		WorkItem{Name: plan.RootLog, Artifact: plan.RootLog, Kind: KindRootLog, DependsOn: []string{plan.Registry}, Policy: policies.Lookup(plan.RootLog)},
	)
	bulkDeps := []string{plan.Registry, plan.RootLog}

	for _, a := range set.All() {
		p := policies.Lookup(a.Name)

		switch {
		case p.Role == RoleRegistry || p.Role == RoleRootLog:
			plan.addPasses(a.Name, p)
			continue
		case p.Role == RoleProxy:
			plan.exclude(a.Name, "proxy helper is only uploaded in front of delegated artifacts")
			continue
		case p.Role == RoleTestClock:
			if opts.UseNormalTime {
				plan.exclude(a.Name, "real clock requested")
			} else {
				plan.exclude(a.Name, "uploaded in place of "+plan.ClockName)
			}
			continue
		case p.TestOnly && opts.IsProduction:
			plan.exclude(a.Name, "test-only artifact in production")
			continue
		case strings.HasPrefix(a.SourcePath, opts.LibraryPrefix) && !p.SharedLibrary:
			plan.exclude(a.Name, "statically linked library")
			continue
		}

		item := WorkItem{
			Name:      a.Name,
			Artifact:  a.Name,
			Kind:      KindUpload,
			DependsOn: bulkDeps,
			Policy:    p,
		}
		if p.Role == RoleClock && !opts.UseNormalTime {
			if testClock == "" || !set.Has(testClock) {
				return Plan{}, NewPlanError(a.Name, "controllable clock is not in the compiled set", artifact.ErrNotFound)
			}
			item.Artifact = testClock
			plan.TestClock = true
		}
		if p.Delegated {
			if !set.Has(plan.Proxy) {
				return Plan{}, NewPlanError(a.Name, "delegated artifact needs the proxy helper "+plan.Proxy, artifact.ErrNotFound)
			}
			item.Kind = KindDelegated
		}
		plan.Items = append(plan.Items, item)
		plan.addPasses(a.Name, p)
	}

	return plan, nil
}

// addPasses lists a planned artifact for the post-upload passes its policy
// asks for. Excluded artifacts are never listed.
func (p *Plan) addPasses(name string, policy Policy) {
	if policy.Initialize {
		p.InitializeNames = append(p.InitializeNames, name)
	}
	if policy.Whitelist {
		p.WhitelistNames = append(p.WhitelistNames, name)
	}
	if policy.Manifest && !IsInterfaceName(name) {
		p.ManifestNames = append(p.ManifestNames, name)
	}
}

func (p *Plan) exclude(name, reason string) {
	p.Excluded = append(p.Excluded, Exclusion{Name: name, Reason: reason})
}

// Item returns the work item registered under name.
func (p Plan) Item(name string) (WorkItem, bool) {
	for _, item := range p.Items {
		if item.Name == name {
			return item, true
		}
	}
	return WorkItem{}, false
}

// LookupKey returns the registration name whose stored content hash decides
// whether the item can be skipped.
func (w WorkItem) LookupKey() string {
	if w.Kind == KindDelegated {
		return TargetName(w.Name)
	}
	return w.Name
}
