// Package changetype defines the closed vocabulary of change types and
// actions the engine accepts on submission, and the table of which action
// is legal for which change type. Keeping this as its own package lets the
// validator, the impact analyzer, and the workflow controller all import
// the same enum instead of each guessing at string literals.
package changetype

// Type classifies the kind of infrastructure a change touches.
type Type string

const (
	Firewall Type = "firewall"
	Switch   Type = "switch"
	VLAN     Type = "vlan"
	Port     Type = "port"
	Rack     Type = "rack"
	CloudSG  Type = "cloud_sg"
)

// Action is the specific operation a change record describes.
type Action string

const (
	ActionAddRule           Action = "add_rule"
	ActionRemoveRule        Action = "remove_rule"
	ActionModifyRule        Action = "modify_rule"
	ActionDisableRule       Action = "disable_rule"
	ActionConfigChange      Action = "config_change"
	ActionRebootDevice      Action = "reboot_device"
	ActionFirmwareUpgrade   Action = "firmware_upgrade"
	ActionDecommission      Action = "decommission"
	ActionDisablePort       Action = "disable_port"
	ActionEnablePort        Action = "enable_port"
	ActionShutdownInterface Action = "shutdown_interface"
	ActionChangeVLAN        Action = "change_vlan"
	ActionDeleteVLAN        Action = "delete_vlan"
	ActionModifyVLAN        Action = "modify_vlan"
	ActionModifySG          Action = "modify_sg"
	ActionDeleteSG          Action = "delete_sg"
)

// validActions maps each change type to the actions legal against it. A
// change whose action isn't in its type's set fails submission validation.
var validActions = map[Type]map[Action]bool{
	Firewall: {
		ActionAddRule:      true,
		ActionRemoveRule:   true,
		ActionModifyRule:   true,
		ActionDisableRule:  true,
		ActionDecommission: true,
	},
	Switch: {
		ActionConfigChange:    true,
		ActionRebootDevice:    true,
		ActionFirmwareUpgrade: true,
		ActionDecommission:    true,
	},
	VLAN: {
		ActionChangeVLAN: true,
		ActionDeleteVLAN: true,
		ActionModifyVLAN: true,
	},
	Port: {
		ActionDisablePort:       true,
		ActionEnablePort:        true,
		ActionShutdownInterface: true,
	},
	Rack: {
		ActionRebootDevice: true,
		ActionDecommission: true,
	},
	CloudSG: {
		ActionModifySG:     true,
		ActionDeleteSG:     true,
		ActionDecommission: true,
	},
}

// IsValidAction reports whether action is legal for change type ct.
func IsValidAction(ct Type, action Action) bool {
	actions, ok := validActions[ct]
	if !ok {
		return false
	}
	return actions[action]
}

// ActionsFor returns the sorted-by-declaration list of actions legal for
// ct, used by the validator to build its oneof error message.
func ActionsFor(ct Type) []Action {
	var out []Action
	for _, a := range AllActions() {
		if validActions[ct][a] {
			out = append(out, a)
		}
	}
	return out
}

// AllTypes lists every recognized change type, for validator oneof tags.
func AllTypes() []Type {
	return []Type{Firewall, Switch, VLAN, Port, Rack, CloudSG}
}

// AllActions lists every recognized action, for validator oneof tags.
func AllActions() []Action {
	return []Action{
		ActionAddRule, ActionRemoveRule, ActionModifyRule, ActionDisableRule,
		ActionConfigChange, ActionRebootDevice, ActionFirmwareUpgrade, ActionDecommission,
		ActionDisablePort, ActionEnablePort, ActionShutdownInterface,
		ActionChangeVLAN, ActionDeleteVLAN, ActionModifyVLAN,
		ActionModifySG, ActionDeleteSG,
	}
}
