package binder

import (
	"github.com/hanpama/gqlplan/internal/language"
	"github.com/hanpama/gqlplan/internal/schema"
)

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups the fields of a selection set by response name, expanding
// fragments that apply to objectType and honouring @skip and @include.
func collectFields(st *bindState, objectType *schema.Type, selectionSet language.SelectionSet) *collectedFieldMap {
	grouped := &collectedFieldMap{index: map[string]int{}}
	collectFieldsImpl(st, objectType, selectionSet, grouped, map[string]bool{})
	return grouped
}

func collectFieldsImpl(st *bindState, objectType *schema.Type, selectionSet language.SelectionSet, grouped *collectedFieldMap, visitedFragments map[string]bool) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if !shouldIncludeNode(st, sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel)

		case *language.InlineFragment:
			if !shouldIncludeNode(st, sel.Directives) || !appliesTo(sel.TypeCondition, objectType) {
				continue
			}
			collectFieldsImpl(st, objectType, sel.SelectionSet, grouped, visitedFragments)

		case *language.FragmentSpread:
			if !shouldIncludeNode(st, sel.Directives) || visitedFragments[sel.Name] {
				continue
			}
			visitedFragments[sel.Name] = true

			def := st.document.Fragments.ForName(sel.Name)
			if def == nil {
				st.errorf(sel.Position, "unknown fragment %q", sel.Name)
				continue
			}
			if !appliesTo(def.TypeCondition, objectType) || !shouldIncludeNode(st, def.Directives) {
				continue
			}
			collectFieldsImpl(st, objectType, def.SelectionSet, grouped, visitedFragments)
		}
	}
}

// appliesTo reports whether a fragment with the given type condition selects fields of
// objectType.
func appliesTo(condition string, objectType *schema.Type) bool {
	if condition == "" || condition == objectType.Name {
		return true
	}
	for _, iface := range objectType.Interfaces {
		if iface == condition {
			return true
		}
	}
	return false
}

func shouldIncludeNode(st *bindState, directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := directiveArgument(st, skip, "if").(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := directiveArgument(st, include, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func directiveArgument(st *bindState, directive *language.Directive, name string) any {
	arg := directive.Arguments.ForName(name)
	if arg == nil {
		return nil
	}
	return valueFromAST(arg.Value, st.variables)
}
