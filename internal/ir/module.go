package ir

// Global is module-level storage shared by all methods.
type Global struct {
	Name string
	// Type is the type of the stored value, not a pointer to it.
	Type     DataType
	Init     Value
	Constant bool
}

// Module is a compilation unit.
type Module struct {
	Name    string
	Methods []*Method
	Globals []Global
}

// FindMethod returns the method called name, or nil.
func (mod *Module) FindMethod(name string) *Method {
	for _, m := range mod.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// FindGlobal returns the global called name.
func (mod *Module) FindGlobal(name string) (Global, bool) {
	for _, g := range mod.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return Global{}, false
}

// Clone returns a copy of mod whose methods can be rewritten without
// affecting mod.
func (mod *Module) Clone() *Module {
	out := &Module{Name: mod.Name, Globals: append([]Global(nil), mod.Globals...)}
	for _, m := range mod.Methods {
		out.Methods = append(out.Methods, m.Clone())
	}
	return out
}
