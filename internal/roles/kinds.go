package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-access/internal/shared"
)

// Kind enumerates the role names that have a built-in permission baseline. It backs
// the degraded path used when a role has no rows in role_permissions.
type Kind int

const (
	KindUnknown Kind = iota
	KindAdmin
	KindGeneralManager
	KindAssistantManager
	KindManager
	KindChefDeCuisine
	KindHeadPizzaiolo
	KindSecondPizzaiolo
	KindCommisPizzaiolo
	KindFloorManager
	KindChefDeRang
	KindRunner
	KindBartender
	KindHandyman
	KindDishwasher
	KindAccountant
	KindHR
	KindMarketing
	KindStaff
)

// Kinds returns every known kind, KindUnknown excluded.
func Kinds() []Kind {
	return []Kind{
		KindAdmin, KindGeneralManager, KindAssistantManager, KindManager,
		KindChefDeCuisine, KindHeadPizzaiolo, KindSecondPizzaiolo, KindCommisPizzaiolo,
		KindFloorManager, KindChefDeRang, KindRunner, KindBartender,
		KindHandyman, KindDishwasher, KindAccountant, KindHR, KindMarketing, KindStaff,
	}
}

// KindOf maps a stored role name to its kind.
func KindOf(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin":
		return KindAdmin
	case "general_manager":
		return KindGeneralManager
	case "assistant_manager":
		return KindAssistantManager
	case "manager":
		return KindManager
	case "chef_de_cuisine":
		return KindChefDeCuisine
	case "head_pizzaiolo":
		return KindHeadPizzaiolo
	case "second_pizzaiolo":
		return KindSecondPizzaiolo
	case "commis_pizzaiolo":
		return KindCommisPizzaiolo
	case "floor_manager":
		return KindFloorManager
	case "chef_de_rang":
		return KindChefDeRang
	case "runner":
		return KindRunner
	case "bartender":
		return KindBartender
	case "handyman":
		return KindHandyman
	case "dishwasher":
		return KindDishwasher
	case "accountant":
		return KindAccountant
	case "hr":
		return KindHR
	case "marketing":
		return KindMarketing
	case "staff":
		return KindStaff
	default:
		return KindUnknown
	}
}

// String returns the stored role name for k.
func (k Kind) String() string {
	switch k {
	case KindAdmin:
		return "admin"
	case KindGeneralManager:
		return "general_manager"
	case KindAssistantManager:
		return "assistant_manager"
	case KindManager:
		return "manager"
	case KindChefDeCuisine:
		return "chef_de_cuisine"
	case KindHeadPizzaiolo:
		return "head_pizzaiolo"
	case KindSecondPizzaiolo:
		return "second_pizzaiolo"
	case KindCommisPizzaiolo:
		return "commis_pizzaiolo"
	case KindFloorManager:
		return "floor_manager"
	case KindChefDeRang:
		return "chef_de_rang"
	case KindRunner:
		return "runner"
	case KindBartender:
		return "bartender"
	case KindHandyman:
		return "handyman"
	case KindDishwasher:
		return "dishwasher"
	case KindAccountant:
		return "accountant"
	case KindHR:
		return "hr"
	case KindMarketing:
		return "marketing"
	case KindStaff:
		return "staff"
	case KindUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// FallbackPermissions returns the baseline permission names for k. Unknown kinds
// carry no permissions.
func FallbackPermissions(k Kind) []string {
	switch k {
	case KindAdmin:
		return shared.AllPermissionNames()
	case KindGeneralManager:
		return []string{
			shared.PermInviteUsers, shared.PermViewUsers,
			shared.PermManageInventory, shared.PermViewInventory, shared.PermUpdateStock,
			shared.PermManageOrders, shared.PermViewOrders, shared.PermApproveOrders,
			shared.PermManageHACCP, shared.PermViewHACCP, shared.PermCompleteChecklists,
			shared.PermManageMaintenance, shared.PermViewMaintenance,
			shared.PermViewFinancials, shared.PermViewSettings,
		}
	case KindAssistantManager:
		return []string{
			shared.PermViewUsers,
			shared.PermViewInventory, shared.PermUpdateStock,
			shared.PermViewOrders, shared.PermApproveOrders,
			shared.PermViewHACCP, shared.PermCompleteChecklists,
			shared.PermViewMaintenance,
			shared.PermViewSettings,
		}
	case KindManager:
		return []string{
			shared.PermViewDashboard, shared.PermManageStaff, shared.PermManageOrders,
			shared.PermViewHACCP, shared.PermManageHACCP, shared.PermManageMaintenance,
		}
	case KindChefDeCuisine:
		return []string{
			shared.PermViewInventory, shared.PermUpdateStock,
			shared.PermViewOrders,
			shared.PermManageHACCP, shared.PermViewHACCP, shared.PermCompleteChecklists,
		}
	case KindHeadPizzaiolo, KindSecondPizzaiolo, KindCommisPizzaiolo:
		return []string{
			shared.PermViewInventory, shared.PermUpdateStock,
			shared.PermViewHACCP, shared.PermCompleteChecklists,
		}
	case KindFloorManager:
		return []string{
			shared.PermViewUsers,
			shared.PermViewInventory,
			shared.PermViewOrders,
			shared.PermViewHACCP, shared.PermCompleteChecklists,
		}
	case KindChefDeRang, KindRunner, KindBartender:
		return []string{shared.PermViewInventory, shared.PermCompleteChecklists}
	case KindHandyman, KindDishwasher:
		return []string{shared.PermViewMaintenance, shared.PermCompleteChecklists}
	case KindAccountant:
		return []string{shared.PermViewFinancials, shared.PermManageFinancials, shared.PermViewOrders}
	case KindHR:
		return []string{shared.PermViewUsers, shared.PermManageUsers, shared.PermViewSettings}
	case KindMarketing:
		return []string{shared.PermViewUsers, shared.PermViewFinancials}
	case KindStaff:
		return []string{shared.PermViewDashboard, shared.PermViewHACCP}
	case KindUnknown:
		return nil
	default:
		return nil
	}
}

// DefaultLevel is the authority level seeded for k.
func DefaultLevel(k Kind) int {
	switch k {
	case KindAdmin:
		return 100
	case KindGeneralManager:
		return 90
	case KindAssistantManager:
		return 80
	case KindManager, KindChefDeCuisine:
		return 70
	case KindFloorManager:
		return 60
	case KindHeadPizzaiolo, KindAccountant, KindHR:
		return 50
	case KindSecondPizzaiolo, KindMarketing:
		return 40
	case KindChefDeRang, KindBartender:
		return 30
	case KindCommisPizzaiolo, KindRunner:
		return 20
	case KindHandyman, KindDishwasher, KindStaff:
		return 10
	case KindUnknown:
		return 0
	default:
		return 0
	}
}

// DisplayName derives a human label from a stored role name.
func DisplayName(name string) string {
	if KindOf(name) == KindHR {
		return "HR"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}
