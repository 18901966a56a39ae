package deployment

// =============================================================================
// Policy Types
// =============================================================================

// Role marks artifacts the pipeline treats specially.
type Role string

const (
	RoleStandard  Role = ""
	RoleRegistry  Role = "registry"
	RoleRootLog   Role = "root_log"
	RoleProxy     Role = "proxy"
	RoleClock     Role = "clock"
	RoleTestClock Role = "test_clock"
)

// Policy is the declarative rule set for one artifact name.
type Policy struct {
	Role Role `yaml:"role,omitempty"`

	// Delegated artifacts are uploaded as "<name>Target" and fronted by a proxy.
	Delegated bool `yaml:"delegated,omitempty"`

	// TestOnly artifacts are never uploaded in production.
	TestOnly bool `yaml:"test_only,omitempty"`

	// SharedLibrary allows a library-namespace artifact to be uploaded.
	SharedLibrary bool `yaml:"shared_library,omitempty"`

	// Initialize requests a post-deploy controller assignment.
	Initialize bool `yaml:"initialize,omitempty"`

	// Whitelist requests registry whitelisting.
	Whitelist bool `yaml:"whitelist,omitempty"`

	// Manifest includes the address in the address manifest.
	Manifest bool `yaml:"manifest,omitempty"`
}

// PolicyTable maps artifact names to policies. Names absent from the table
// get the zero Policy.
type PolicyTable map[string]Policy

// Options are the run configuration values that affect planning.
type Options struct {
	// UseNormalTime uploads the real clock instead of the controllable one.
	UseNormalTime bool

	// IsProduction suppresses test-only artifacts.
	IsProduction bool

	// LibraryPrefix is the source namespace of statically linked libraries.
	LibraryPrefix string
}

// =============================================================================
// Work Types
// =============================================================================

// WorkKind selects how the orchestrator handles a work item.
type WorkKind string

const (
	KindRegistry  WorkKind = "registry"
	KindRootLog   WorkKind = "root_log"
	KindUpload    WorkKind = "upload"
	KindDelegated WorkKind = "delegated"
)

// WorkItem is one logical upload. Name is the registration name; Artifact is
// the artifact whose bytecode is uploaded (they differ for the clock
// substitution).
type WorkItem struct {
	Name      string
	Artifact  string
	Kind      WorkKind
	DependsOn []string
	Policy    Policy
}

// Exclusion records an artifact left out of the upload work list.
type Exclusion struct {
	Name   string
	Reason string
}

// Plan is the output of PlanWork, consulted by every later stage.
type Plan struct {
	Items    []WorkItem
	Excluded []Exclusion

	// Names of the artifacts holding the special roles.
	Registry string
	RootLog  string
	Proxy    string

	// Logical names for the initialization, whitelisting, and manifest passes,
	// in artifact load order.
	InitializeNames []string
	WhitelistNames  []string
	ManifestNames   []string

	// ClockName is the logical clock name; TestClock is set when the
	// controllable clock is in use.
	ClockName string
	TestClock bool
}

// =============================================================================
// Default Policy Table
// =============================================================================

// Artifact names used by the default policy table.
const (
	NameController               = "Controller"
	NameAugurLite                = "AugurLite"
	NameDelegator                = "Delegator"
	NameTime                     = "Time"
	NameTimeControlled           = "TimeControlled"
	NameTestNetDenominationToken = "TestNetDenominationToken"
	NameMap                      = "Map"
	NameCompleteSets             = "CompleteSets"
	NameClaimTradingProceeds     = "ClaimTradingProceeds"
	NameShareToken               = "ShareToken"
	NameUniverse                 = "Universe"
)

// DefaultLibraryPrefix is the source namespace of linked libraries.
const DefaultLibraryPrefix = "libraries/"

// TargetSuffix is appended to a delegated artifact's name to form the
// registration name of its implementation.
const TargetSuffix = "Target"
