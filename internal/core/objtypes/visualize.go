package objtypes

import "github.com/JonMunkholm/objimport/internal/core"

func init() {
	registerVisualizeTypes()
}

func registerVisualizeTypes() {
	core.Register(core.TypeDefinition{
		Name:          "dashboard",
		NamespaceType: core.NamespaceSingle,
		Management: core.Management{
			Importable:  true,
			Icon:        "dashboardApp",
			DisplayName: "Dashboard",
		},
	})
	core.Register(core.TypeDefinition{
		Name:          "visualization",
		NamespaceType: core.NamespaceSingle,
		Management: core.Management{
			Importable:  true,
			Icon:        "visualizeApp",
			DisplayName: "Visualization",
		},
	})
	core.Register(core.TypeDefinition{
		Name:          "search",
		NamespaceType: core.NamespaceSingle,
		Management: core.Management{
			Importable:  true,
			Icon:        "discoverApp",
			DisplayName: "Saved search",
		},
	})
	core.Register(core.TypeDefinition{
		Name:          "query",
		NamespaceType: core.NamespaceSingle,
		Management: core.Management{
			Importable:  true,
			Icon:        "search",
			DisplayName: "Query",
		},
	})
}
