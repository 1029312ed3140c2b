package models

// CascadeBranch identifies one independent bulk update of the faculty cascade.
type CascadeBranch string

const (
	BranchMCAssignUser        CascadeBranch = "mc.assign.user"
	BranchMCAssignEvents      CascadeBranch = "mc.assign.events"
	BranchMCReleasePrevious   CascadeBranch = "mc.release.previous"
	BranchMCRemoveUsers       CascadeBranch = "mc.remove.users"
	BranchMCRemoveEvents      CascadeBranch = "mc.remove.events"
	BranchNameUsers           CascadeBranch = "name.users"
	BranchNameEvents          CascadeBranch = "name.events"
	BranchNameContributions   CascadeBranch = "name.contributions"
	BranchDeleteUsers         CascadeBranch = "delete.users"
	BranchDeleteEvents        CascadeBranch = "delete.events"
	BranchDeleteContributions CascadeBranch = "delete.contributions"
)

// BranchFailure records why a branch did not complete.
type BranchFailure struct {
	Branch CascadeBranch `json:"branch"`
	Error  string        `json:"error"`
	// Unavailable marks connection-level failures of the persistence layer.
	Unavailable bool `json:"unavailable"`
}

// CascadeResult aggregates per-branch outcomes of one faculty mutation.
type CascadeResult struct {
	FacultyID string          `json:"faculty_id"`
	Succeeded []CascadeBranch `json:"succeeded"`
	Failed    []BranchFailure `json:"failed"`
	// Updated counts the rows written by each succeeded branch.
	Updated map[CascadeBranch]int64 `json:"updated"`
}

// OK reports whether every planned branch succeeded.
func (r *CascadeResult) OK() bool {
	return r != nil && len(r.Failed) == 0
}

// FailedBranches lists the branches that need a retry.
func (r *CascadeResult) FailedBranches() []CascadeBranch {
	if r == nil {
		return nil
	}
	out := make([]CascadeBranch, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Branch)
	}
	return out
}
