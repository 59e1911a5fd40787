package models

// Drawer is a physical compartment. Number is the hardware alias suffix
// and the key of its reference image and region file.
type Drawer struct {
	ID          int64
	Number      int
	Name        string
	Description string
	Active      bool
	Tools       []Tool
}

// Tool is one catalogued item. DrawerNumber and DrawerName come from the
// drawer the tool sits in; DrawerNumber is nil when that drawer cannot be
// resolved. Inactive tools are never selectable.
type Tool struct {
	ID           int64
	Name         string
	Code         string
	Description  string
	DrawerID     int64
	DrawerNumber *int
	DrawerName   string
	Position     int
	Quantity     int
	Active       bool
}

// ToolCustody pairs a tool with the kind of its most recent confirmed
// movement; LastConfirmed is nil when the tool never moved.
type ToolCustody struct {
	Tool          Tool
	LastConfirmed *MovementKind
}

// Held reports whether the tool is out of its drawer.
func (c ToolCustody) Held() bool {
	return c.LastConfirmed != nil && *c.LastConfirmed == Withdrawal
}

// EligibleFor is the single custody rule used by selection: a withdrawal
// needs the tool available, a return needs it held.
func (c ToolCustody) EligibleFor(kind MovementKind) bool {
	if !c.Tool.Active {
		return false
	}
	switch kind {
	case Withdrawal:
		return !c.Held()
	case Return:
		return c.Held()
	default:
		return false
	}
}
