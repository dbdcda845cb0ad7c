package domain

import "testing"

func TestHolderSummaryCountsNicknameHolders(t *testing.T) {
	inspectors := []User{{Name: "Tor (ต่อ)", NickName: "ต่อ", Role: RoleInspector}}
	tasks := []Revision{
		{CurrentHolder: "Tor (ต่อ)"},
		{CurrentHolder: "Tor (ต่อ)"},
	}

	got := HolderSummary(tasks, inspectors)
	if len(got) != 1 || got[0].Label != "ต่อ" || got[0].Count != 2 {
		t.Fatalf("expected ต่อ 2, got %+v", got)
	}
}

func TestHolderSummaryMatchingRules(t *testing.T) {
	inspectors := []User{
		{Name: "Kong", NickName: "ก้อง", Role: RoleInspector},
		{Name: "Mai", Role: RoleInspector},
	}
	tasks := []Revision{
		{CurrentHolder: "Kong"},
		{CurrentHolder: "ก้อง"},
		{CurrentHolder: "Kong (ก้อง)"},
		{CurrentHolder: ""},
		{CurrentHolder: "Owner"},
	}

	got := HolderSummary(tasks, inspectors)
	if got[0].Count != 3 || got[1].Count != 0 {
		t.Fatalf("unexpected counts %+v", got)
	}
	if s := FormatHolderSummary(got); s != "ก้อง 3, Mai 0" {
		t.Fatalf("unexpected summary %q", s)
	}
}
