package stepflow

import "reflect"

// ValidateDependencies walks the constructor graph below target and reports
// the first cycle or unresolvable dependency it finds.
//
// A dependency resolves when it is a registered binding class, a provided
// context type, or a pointer to a struct that can be zero-constructed.
func (r *Registry) ValidateDependencies(target reflect.Type) error {
	return r.visitDependencies(target, []reflect.Type{target}, make(map[reflect.Type]bool))
}

func (r *Registry) visitDependencies(t reflect.Type, path []reflect.Type, done map[reflect.Type]bool) error {
	if done[t] {
		return nil
	}

	for i, dep := range r.ContextTypesForTarget(t) {
		if dep == nil {
			return &UndefinedDependencyError{Target: t, Index: i}
		}

		if idx := indexOfType(path, dep); idx >= 0 {
			cycle := append(append([]reflect.Type(nil), path[idx:]...), dep)
			return &CyclicDependencyError{Path: cycle}
		}

		switch {
		case r.isBindingClass(dep):
			if err := r.visitDependencies(dep, append(path, dep), done); err != nil {
				return err
			}
		case r.IsProvidedContextType(dep):
		case isPointerToStruct(dep):
		default:
			return &UndefinedDependencyError{Target: t, Index: i, Dependency: dep}
		}
	}

	done[t] = true
	return nil
}

func indexOfType(path []reflect.Type, t reflect.Type) int {
	for i, p := range path {
		if p == t {
			return i
		}
	}
	return -1
}

func isPointerToStruct(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct
}
