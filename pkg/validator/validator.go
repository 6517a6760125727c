// Package validator wraps go-playground/validator to check inbound change
// submissions before they reach the workflow controller: a single shared
// *validator.Validate instance using only the library's built-in tags, a
// cross-field action/change-type check, and failures translated into the engine's own error
// taxonomy rather than leaking validator internals to callers.
package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/cierrors"
)

// ChangeRequest is the shape an API or CLI caller submits to create a
// change record, validated before it is handed to changestore.Store.Create.
type ChangeRequest struct {
	Title           string   `validate:"required,min=3,max=200"`
	Description     string   `validate:"max=4000"`
	RequesterID     string   `validate:"required"`
	ChangeType      string   `validate:"required,oneof=firewall switch vlan port rack cloud_sg"`
	Action          string   `validate:"required,oneof=add_rule remove_rule modify_rule disable_rule config_change reboot_device firmware_upgrade decommission disable_port enable_port shutdown_interface change_vlan delete_vlan modify_vlan modify_sg delete_sg"`
	Environment     string   `validate:"required,oneof=prod staging dev"`
	TargetNodeIDs   []string `validate:"required,min=1,dive,required"`
	HasRollbackPlan bool
	RollbackPlan    string `validate:"required_if=HasRollbackPlan true"`
}

// Validator validates domain records and translates failures into
// *cierrors.ValidationError.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the library's built-in tags; no custom tags
// are registered.
func New() *Validator {
	v := validator.New()
	return &Validator{validate: v}
}

// ValidateChangeRequest checks req against its struct tags, then against
// the changetype package's action/change-type compatibility table: a
// syntactically valid action (e.g. config_change) is still rejected if
// it isn't legal for the request's change type (e.g. a port change only
// accepts disable_port/enable_port/shutdown_interface).
func (v *Validator) ValidateChangeRequest(req ChangeRequest) error {
	if err := v.validate.Struct(req); err != nil {
		return translate(err)
	}

	ct := changetype.Type(req.ChangeType)
	action := changetype.Action(req.Action)
	if !changetype.IsValidAction(ct, action) {
		return cierrors.NewValidationError("action", actionMismatchMessage(ct))
	}
	return nil
}

func actionMismatchMessage(ct changetype.Type) string {
	actions := changetype.ActionsFor(ct)
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return "is not valid for change type " + string(ct) + ": must be one of " + strings.Join(names, ", ")
}

// translate converts the first validator field error into the engine's
// ValidationError shape. Only the first failure is surfaced: callers fix
// one field at a time, the same way an API handler reports failures to
// clients.
func translate(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return cierrors.NewValidationError("", err.Error())
	}

	first := fieldErrs[0]
	field := strings.ToLower(first.Field())
	return cierrors.NewValidationError(field, messageForTag(first))
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "is shorter than the minimum length of " + fe.Param()
	case "max":
		return "exceeds the maximum length of " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "required_if":
		return "is required given the other field values on this record"
	case "dive":
		return "contains an invalid element"
	default:
		return "failed validation rule " + fe.Tag()
	}
}
