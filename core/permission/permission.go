// Package permission aggregates the capabilities a viewer holds over a student's records.
package permission

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/cwarwicker/elbp/core/user"
)

// Capability is a single permission bit.
type Capability uint32

const (
	CapViewDashboard Capability = 1 << iota
	CapViewOwn
	CapAddRecords
	CapEditRecords
	CapDeleteRecords
	CapManageTutors
	CapImportCSV
	CapManagePlugins
	CapManageSettings
	CapViewAllStudents
	CapManageAlerts
	CapMIS
)

const capAll = CapViewDashboard | CapViewOwn | CapAddRecords | CapEditRecords | CapDeleteRecords |
	CapManageTutors | CapImportCSV | CapManagePlugins | CapManageSettings | CapViewAllStudents |
	CapManageAlerts | CapMIS

var capNames = map[Capability]string{
	CapViewDashboard:   "view_dashboard",
	CapViewOwn:         "view_own",
	CapAddRecords:      "add_records",
	CapEditRecords:     "edit_records",
	CapDeleteRecords:   "delete_records",
	CapManageTutors:    "manage_tutors",
	CapImportCSV:       "import_csv",
	CapManagePlugins:   "manage_plugins",
	CapManageSettings:  "manage_settings",
	CapViewAllStudents: "view_all_students",
	CapManageAlerts:    "manage_alerts",
	CapMIS:             "mis",
}

// roleCaps are granted by a global role regardless of the student being viewed.
var roleCaps = map[string]Capability{
	user.RoleAdminOwner: capAll,
	user.RoleAdmin:      capAll,
	user.RoleTeacher:    CapManageAlerts,
	user.RoleTutor:      CapManageAlerts,
	user.RoleStudent:    CapViewOwn,
}

const (
	selfCaps    = CapViewDashboard | CapViewOwn
	tutorCaps   = CapViewDashboard | CapAddRecords | CapEditRecords | CapDeleteRecords | CapManageAlerts
	teacherCaps = CapViewDashboard | CapAddRecords | CapEditRecords
)

// Set is an aggregated set of capabilities.
type Set Capability

// Has reports whether every one of caps is in the set.
func (s Set) Has(caps ...Capability) bool {
	for _, c := range caps {
		if Capability(s)&c != c {
			return false
		}
	}
	return true
}

func (s Set) With(caps ...Capability) Set {
	for _, c := range caps {
		s |= Set(c)
	}
	return s
}

// Names lists the capability names in the set, in bit order.
func (s Set) Names() []string {
	names := make([]string, 0, len(capNames))
	for c := CapViewDashboard; c <= CapMIS; c <<= 1 {
		if s.Has(c) {
			names = append(names, capNames[c])
		}
	}
	return names
}

// RoleSet returns the capabilities granted by roles alone.
func RoleSet(roles []string) Set {
	var s Set
	for _, role := range roles {
		s |= Set(roleCaps[role])
	}
	return s
}

// ContextSource answers the relationship questions behind contextual capabilities.
type ContextSource interface {
	IsPersonalTutor(ctx context.Context, tutorID, studentID int64) (bool, error)
	// IsCourseTeacher reports whether teacherID teaches studentID on courseID; courseID 0 means any shared course.
	IsCourseTeacher(ctx context.Context, teacherID, studentID, courseID int64) (bool, error)
}

type Resolver struct {
	src ContextSource
}

func NewResolver(src ContextSource) *Resolver {
	vala.BeginValidation().Validate(
		vala.IsNotNil(src, "src"),
	).CheckAndPanic()
	return &Resolver{src: src}
}

// Resolve ORs the viewer's role bits with the bits its relationship to the student grants.
func (r *Resolver) Resolve(ctx context.Context, viewer user.User, studentID, courseID int64) (Set, error) {
	s := RoleSet(viewer.Roles)
	if studentID == 0 {
		return s, nil
	}
	if viewer.ID == studentID {
		s = s.With(selfCaps)
	}
	if viewer.IsTutor() {
		ok, err := r.src.IsPersonalTutor(ctx, viewer.ID, studentID)
		if err != nil {
			return 0, errors.Wrap(err, "resolving tutor capabilities")
		}
		if ok {
			s = s.With(tutorCaps)
		}
	}
	if viewer.IsTeacher() {
		ok, err := r.src.IsCourseTeacher(ctx, viewer.ID, studentID, courseID)
		if err != nil {
			return 0, errors.Wrap(err, "resolving teacher capabilities")
		}
		if ok {
			s = s.With(teacherCaps)
		}
	}
	return s, nil
}

// CanView reports whether s allows viewing the student dashboard it was resolved for.
func (s Set) CanView() bool {
	return s.Has(CapViewDashboard) || s.Has(CapViewAllStudents)
}
