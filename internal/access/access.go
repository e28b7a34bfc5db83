// Package access decides whether a principal may perform an action on a
// resource. It has no I/O; callers load the principal and the resource
// first.
package access

import (
	"github.com/Skotchmaster/data_delivery/internal/errs"
	"github.com/Skotchmaster/data_delivery/internal/models"
)

type Action string

const (
	ListProjects   Action = "list_projects"
	CreateProject  Action = "create_project"
	ReadProject    Action = "read_project"
	ReadPublicKey  Action = "read_public_key"
	ReadPrivateKey Action = "read_private_key"
	UploadFile     Action = "upload_file"
	DeleteFile     Action = "delete_file"
	DownloadFile   Action = "download_file"
	ChangeStatus   Action = "change_status"
	RotateKeys     Action = "rotate_keys"
	ManageAccess   Action = "manage_access"
	ViewUsage      Action = "view_usage"
	ManageUsers    Action = "manage_users"
)

type Principal struct {
	Username string
	Role     string
	UnitID   *uint
	Active   bool
	// Projects holds the ids a researcher has been granted.
	Projects map[uint]bool
}

// Resource describes the target. ProjectID is zero for unit-level actions.
type Resource struct {
	ProjectID uint
	UnitID    uint
	Status    string
}

func ProjectResource(p *models.Project) Resource {
	return Resource{ProjectID: p.ID, UnitID: p.UnitID, Status: p.CurrentStatus}
}

type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return errs.AccessDenied("%s", d.Reason)
}

var rank = map[string]int{
	models.RoleResearcher: 1,
	models.RoleUnitAdmin:  2,
	models.RoleSuperAdmin: 3,
}

var minRole = map[Action]string{
	ListProjects:   models.RoleResearcher,
	ReadProject:    models.RoleResearcher,
	ReadPublicKey:  models.RoleResearcher,
	DownloadFile:   models.RoleResearcher,
	CreateProject:  models.RoleUnitAdmin,
	ReadPrivateKey: models.RoleUnitAdmin,
	UploadFile:     models.RoleUnitAdmin,
	DeleteFile:     models.RoleUnitAdmin,
	ChangeStatus:   models.RoleUnitAdmin,
	RotateKeys:     models.RoleUnitAdmin,
	ManageAccess:   models.RoleUnitAdmin,
	ViewUsage:      models.RoleUnitAdmin,
	ManageUsers:    models.RoleUnitAdmin,
}

// AuthorizeRole checks only what can be known without the resource: the
// account is active and its role is high enough for the action.
func AuthorizeRole(p Principal, a Action) Decision {
	if !p.Active {
		return deny("Your account has been deactivated")
	}
	have, ok := rank[p.Role]
	if !ok {
		return deny("Unknown role")
	}
	need, ok := minRole[a]
	if !ok {
		return deny("Unknown action")
	}
	if have < rank[need] {
		if a == ReadPrivateKey {
			return deny("Insufficient credentials: project private keys are only released to unit administrators")
		}
		return deny("Insufficient credentials")
	}
	return allow()
}

func Authorize(p Principal, a Action, r Resource) Decision {
	if d := AuthorizeRole(p, a); !d.Allowed {
		return d
	}

	switch a {
	case ListProjects:
		return allow()
	case CreateProject, ViewUsage:
		if p.UnitID == nil {
			return deny("Your user is not associated to a unit")
		}
		if r.UnitID != 0 && r.UnitID != *p.UnitID {
			return deny("You do not have access to this unit")
		}
		return allow()
	case ManageUsers:
		if p.Role == models.RoleSuperAdmin {
			return allow()
		}
		if p.UnitID == nil || r.UnitID != *p.UnitID {
			return deny("You do not have access to this unit")
		}
		return allow()
	}

	if r.ProjectID == 0 {
		return deny("No project specified")
	}
	if !inScope(p, r) {
		return deny("Project access denied")
	}

	switch a {
	case UploadFile, DeleteFile:
		if r.Status != models.StatusInProgress {
			return deny("Project is not in progress: files can only be changed while the project is In Progress")
		}
	case DownloadFile:
		if p.Role == models.RoleResearcher && r.Status != models.StatusAvailable {
			return deny("Project is not available for download")
		}
	}
	return allow()
}

func inScope(p Principal, r Resource) bool {
	switch p.Role {
	case models.RoleSuperAdmin:
		return true
	case models.RoleUnitAdmin:
		return p.UnitID != nil && *p.UnitID == r.UnitID
	default:
		return p.Projects[r.ProjectID]
	}
}
