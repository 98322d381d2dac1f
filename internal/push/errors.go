package push

import "errors"

var (
	ErrNoPatches           = errors.New("no patches to push")
	ErrDirtyRepository     = errors.New("repository has uncommitted changes")
	ErrNoBranchesNoTickets = errors.New("no branches given and no tickets referenced")
	ErrNoMilestone         = errors.New("no milestone set on any ticket")
	ErrDisparateMilestones = errors.New("tickets have different milestones")
	ErrPatchApply          = errors.New("patch failed to apply")
	ErrPush                = errors.New("push failed")
)
