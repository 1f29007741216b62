package models

import "testing"

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"fleet manager role", RoleFleetManager, true},
		{"supervisor role", RoleSupervisor, true},
		{"inspector role", RoleInspector, true},
		{"driver role", RoleDriver, true},
		{"invalid role", "invalid", false},
		{"empty role", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%s) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestIsValidInspectionType(t *testing.T) {
	for _, typ := range []InspectionType{InspectionTypePreTrip, InspectionTypePostTrip, InspectionTypeDaily,
		InspectionTypeWeekly, InspectionTypeMonthly, InspectionTypeAnnual} {
		if !IsValidInspectionType(typ) {
			t.Errorf("IsValidInspectionType(%s) = false, want true", typ)
		}
	}
	if IsValidInspectionType("quarterly") {
		t.Errorf("IsValidInspectionType(quarterly) = true, want false")
	}
}
