package cos

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"

	"github.com/dashrun/dash/stream"
)

// uuidABC mirrors the teacher's alphabet choice (cmn/cos/uuid.go):
// unambiguous characters, safe in file names and wire payloads.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	sidOnce.Do(func() {
		sid = shortid.MustNew(1, uuidABC, 0)
	})
}

// GenRunID returns a short opaque identifier for a single client invocation,
// used to namespace scratch files and log lines across concurrent runs
// against the same servers.
func GenRunID() string {
	initShortID()
	return sid.MustGenerate()
}

// GenProgramID returns a fresh stream.ProgramId derived from a GenRunID
// string, collapsed to the int64 every wire message and shared-map key
// already expects.
func GenProgramID() stream.ProgramId {
	id := GenRunID()
	return stream.ProgramId(xxhash.Checksum64S([]byte(id), 0))
}
