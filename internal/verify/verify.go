// Package verify checks fetched files against their published digests and
// lets the user knowingly accept a mismatch.
package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/artifact"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/digest"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/prompt"
)

// OverridePrompt is asked when a digest does not match.
const OverridePrompt = "Do you still want to continue? (not recommended)"

// ErrIntegrityMismatch is returned when a digest mismatch was not accepted.
var ErrIntegrityMismatch = errors.New("integrity mismatch")

// Result is the outcome of comparing one file against an expected digest.
type Result struct {
	Match     bool
	Algorithm digest.Algorithm
	Actual    string
	Expected  string
}

// Verify hashes the file at path with the algorithm implied by expected and
// compares case-insensitively.
func Verify(path, expected string) (Result, error) {
	algo, err := digest.AlgorithmFor(expected)
	if err != nil {
		return Result{}, err
	}

	actual, err := digest.File(path, algo)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Match:     digest.Equal(actual, expected),
		Algorithm: algo,
		Actual:    actual,
		Expected:  expected,
	}, nil
}

// Outcome records what happened to one artifact's integrity check.
type Outcome struct {
	Artifact string
	Path     string
	// Checked is false when the artifact has no expected digest.
	Checked bool
	Result  Result
	// Overridden is true when the digest mismatched and the user chose to
	// continue anyway.
	Overridden bool
}

// MismatchError is returned when the user refused to continue past a digest
// mismatch. It matches both ErrIntegrityMismatch and prompt.ErrUserDeclined.
type MismatchError struct {
	Artifact string
	Path     string
	Result   Result
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s digest of %s is %s, expected %s",
		e.Artifact, e.Result.Algorithm, e.Path, e.Result.Actual, e.Result.Expected)
}

func (e *MismatchError) Unwrap() []error {
	return []error{ErrIntegrityMismatch, prompt.ErrUserDeclined}
}

// Verifier checks fetched artifacts and asks before accepting a mismatch.
type Verifier struct {
	gate   prompt.Gate
	logger config.Logger
}

// New creates a verifier.
func New(gate prompt.Gate, logger config.Logger) *Verifier {
	return &Verifier{
		gate:   gate,
		logger: config.OrNop(logger),
	}
}

// Check verifies path against desc's expected digest. A mismatch is only
// fatal when the user declines to continue.
func (v *Verifier) Check(ctx context.Context, desc artifact.Descriptor, path string) (Outcome, error) {
	out := Outcome{Artifact: desc.ID, Path: path}
	if desc.ExpectedDigest == "" {
		v.logger.Warn("downloaded file has no published digest; not verified", "artifact", desc.ID, "path", path)
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	res, err := Verify(path, desc.ExpectedDigest)
	if err != nil {
		return out, fmt.Errorf("%s: verify: %w", desc.ID, err)
	}
	out.Checked = true
	out.Result = res

	if res.Match {
		v.logger.Info("digest verified", "artifact", desc.ID, "algorithm", string(res.Algorithm))
		return out, nil
	}

	v.logger.Warn("file may be corrupted",
		"artifact", desc.ID, "path", path, "algorithm", string(res.Algorithm),
		"actual", res.Actual, "expected", res.Expected)

	ok, err := v.gate.Confirm(OverridePrompt, true)
	if err != nil {
		return out, fmt.Errorf("%s: %w", desc.ID, err)
	}
	if !ok {
		return out, &MismatchError{Artifact: desc.ID, Path: path, Result: res}
	}

	out.Overridden = true
	v.logger.Warn("continuing with unverified file", "artifact", desc.ID, "path", path)
	return out, nil
}
