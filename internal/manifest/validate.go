package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var structValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(listRules, InstructionManifest{})
	return v
})

// listRules rejects actions that are not allowed in the list they appear in.
func listRules(sl validator.StructLevel) {
	m := sl.Current().Interface().(InstructionManifest)
	check := func(list List, ops []Operation) {
		for i, op := range ops {
			if op.Action == "" || op.Action.AllowedIn(list) {
				continue
			}
			field := fmt.Sprintf("%s[%d].action", list, i)
			sl.ReportError(op.Action, field, field, "action_in_"+string(list), string(op.Action))
		}
	}
	check(ListInstall, m.Install)
	check(ListUninstall, m.Uninstall)
}

// Validate checks a decoded manifest: action/list compatibility, non-empty
// sources and process names, and a destination on every copy.
// Version support is the engine's concern and is not checked here.
func Validate(m *InstructionManifest) error {
	if m == nil {
		return &SchemaError{Problems: []string{"manifest is empty"}}
	}
	err := structValidator().Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &SchemaError{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return &SchemaError{Problems: problems}
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "InstructionManifest.")
	switch fe.Tag() {
	case "required":
		return field + ": is required"
	case "required_if":
		return field + ": is required for copy"
	case "action_in_install", "action_in_uninstall":
		return fmt.Sprintf("%s: action %q is not allowed here", field, fe.Param())
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}
