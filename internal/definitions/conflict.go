package definitions

// writeAction is the outcome of the conflict policy for a single persist call.
type writeAction int

const (
	writeActionInsert writeAction = iota + 1
	writeActionRefresh
	writeActionReject
)

// PersistResult reports what a persist call did to the table.
type PersistResult string

const (
	// PersistResultCreated means the first revision for the name was inserted.
	PersistResultCreated PersistResult = "created"
	// PersistResultRevised means new content was appended as a new revision.
	PersistResultRevised PersistResult = "revised"
	// PersistResultUnchanged means identical content only refreshed updatedAt.
	PersistResultUnchanged PersistResult = "unchanged"
)

// decideWrite applies the conflict policy. Existence alone triggers a rejection when
// overwriting is disallowed, even if the content is identical.
func decideWrite(current *Definition, incoming Hash, overwriteExisting bool) (writeAction, PersistResult) {
	switch {
	case current == nil:
		return writeActionInsert, PersistResultCreated
	case !overwriteExisting:
		return writeActionReject, ""
	case current.Hash == incoming.String():
		return writeActionRefresh, PersistResultUnchanged
	default:
		return writeActionInsert, PersistResultRevised
	}
}
