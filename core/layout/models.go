package layout

type (
	// Group is an ordered set of plugins shown together on the dashboard.
	Group struct {
		ID       int64    `json:"id"`
		LayoutID int64    `json:"layout_id"`
		Name     string   `json:"name"`
		Ordernum int      `json:"ordernum"`
		Plugins  []string `json:"plugins"`
	}

	Layout struct {
		ID        int64   `json:"id"`
		Name      string  `json:"name"`
		Enabled   bool    `json:"enabled"`
		IsDefault bool    `json:"is_default"`
		Groups    []Group `json:"groups"`
	}

	GroupForm struct {
		Name    string   `json:"name" validate:"required,max=255"`
		Plugins []string `json:"plugins" validate:"dive,plugin_name"`
	}

	// Form is one submitted layout. ID is zero for a new layout.
	Form struct {
		ID        int64       `json:"id" validate:"gte=0"`
		Name      string      `json:"name" validate:"required,max=255"`
		Enabled   bool        `json:"enabled"`
		IsDefault bool        `json:"is_default"`
		Groups    []GroupForm `json:"groups" validate:"dive"`
	}
)

// HasPlugin reports whether any group of the layout shows the plugin.
func (l Layout) HasPlugin(name string) bool {
	for _, grp := range l.Groups {
		for _, p := range grp.Plugins {
			if p == name {
				return true
			}
		}
	}
	return false
}

// defaultIndex picks the default among forms: the first submitted default,
// else the first enabled layout, else the first layout; -1 when there is none.
func defaultIndex(forms []Form) int {
	if len(forms) == 0 {
		return -1
	}
	for i, f := range forms {
		if f.IsDefault {
			return i
		}
	}
	for i, f := range forms {
		if f.Enabled {
			return i
		}
	}
	return 0
}
