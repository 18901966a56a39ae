package deployer

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrGenesisVerificationFailed is returned when the genesis universe
	// dry run returns nothing or the created universe misreports its type.
	ErrGenesisVerificationFailed = errors.New("genesis universe verification failed")

	// ErrInvalidConfig is returned for unusable orchestrator settings.
	ErrInvalidConfig = errors.New("invalid deployer configuration")
)

// Stages of a run.
const (
	StageSnapshot   = "snapshot"
	StagePlan       = "plan"
	StageRegistry   = "registry"
	StageRootLog    = "root_log"
	StageUpload     = "upload"
	StageInitialize = "initialize"
	StageWhitelist  = "whitelist"
	StageClock      = "clock"
	StageGenesis    = "genesis"
	StageManifest   = "manifest"
)

// StageError records the stage, and the artifact when there is one, at
// which a run failed.
type StageError struct {
	Stage    string
	Artifact string
	Err      error
}

func (e *StageError) Error() string {
	if e.Artifact != "" {
		return fmt.Sprintf("%s stage failed for %s: %v", e.Stage, e.Artifact, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError. An err that is already a
// StageError is returned unchanged.
func NewStageError(stage, artifact string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Artifact: artifact, Err: err}
}
