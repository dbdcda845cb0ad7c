package domain

import "testing"

func TestSortByWorkNumeric(t *testing.T) {
	tasks := []Revision{{Work: "10"}, {Work: "2"}, {Work: "b"}, {Work: "A"}, {Work: "1"}}
	got := SortByWork(tasks)
	want := []string{"1", "2", "10", "A", "b"}
	for i, w := range want {
		if got[i].Work != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, got[i].Work)
		}
	}
	if tasks[0].Work != "10" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestMeetingReport(t *testing.T) {
	tasks := []Revision{
		{Work: "2", Subject: "Audit", Responsible: "B (b)", Status: StatusClosed, ECM: "ECM-9"},
		{Work: "1", Subject: "Budget", Responsible: "A (a)", Note: "draft"},
	}
	got := MeetingReport("ครั้งที่ 1/2567", tasks)
	want := "สรุปวาระการประชุม ครั้งที่ 1/2567\n\n" +
		"1 Budget\n   - ECM: -\n   - Note: draft\n   - สถานะ: Pending (a)\n\n" +
		"2 Audit\n   - ECM: ECM-9\n   - Note: -\n   - สถานะ: ปิดงาน (b)\n\n"
	if got != want {
		t.Fatalf("unexpected report:\n%s", got)
	}
}
