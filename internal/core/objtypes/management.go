package objtypes

import "github.com/JonMunkholm/objimport/internal/core"

func init() {
	registerManagementTypes()
}

func registerManagementTypes() {
	// Index patterns are shared across namespaces.
	core.Register(core.TypeDefinition{
		Name:          "index-pattern",
		NamespaceType: core.NamespaceMultiple,
		Management: core.Management{
			Importable:  true,
			Icon:        "indexPatternApp",
			DisplayName: "Index pattern",
		},
	})
	core.Register(core.TypeDefinition{
		Name:          core.DataSourceType,
		NamespaceType: core.NamespaceAgnostic,
		AssignOnly:    true,
		Management: core.Management{
			Importable:  true,
			Icon:        "database",
			DisplayName: "Data source",
		},
	})
	core.Register(core.TypeDefinition{
		Name:          "config",
		NamespaceType: core.NamespaceSingle,
		Management: core.Management{
			Importable:  true,
			Icon:        "advancedSettingsApp",
			DisplayName: "Advanced settings",
		},
	})
	// Workspaces are provisioned, never imported.
	core.Register(core.TypeDefinition{
		Name:          "workspace",
		NamespaceType: core.NamespaceAgnostic,
		Hidden:        true,
	})
}
