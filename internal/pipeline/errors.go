package pipeline

import (
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/prompt"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/verify"
	"github.com/ZebulonRouseFrantzich/mscbundle/internal/version"
)

// Errors a run can end with. Check them with errors.Is; fetch.ToolError,
// verify.MismatchError and version.MismatchError carry details for
// errors.As.
var (
	ErrUserDeclined      = prompt.ErrUserDeclined
	ErrIntegrityMismatch = verify.ErrIntegrityMismatch
	ErrVersionMismatch   = version.ErrVersionMismatch
)
